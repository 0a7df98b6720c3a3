// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/hexswarm/hexswarm/internal/port/cache"
	"github.com/hexswarm/hexswarm/internal/resilience"
)

// Cache combines an L1 (in-process) and an optional L2 (remote) cache.
// Get checks L1 first, then L2 (backfilling L1 on L2 hit). Set and Delete
// operate on both levels. L2 sits behind a circuit breaker and its
// failures degrade to L1-only operation instead of surfacing.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
	breaker  *resilience.Breaker
}

// New creates a tiered cache. l2 and breaker may be nil.
// l1Expire controls how long L2 backfill entries live in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration, breaker *resilience.Breaker) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire, breaker: breaker}
}

func (c *Cache) remote(ctx context.Context, op string, fn func(context.Context) error) {
	if c.l2 == nil {
		return
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteContext(ctx, fn)
	} else {
		err = fn(ctx)
	}
	if err != nil {
		slog.Debug("l2 cache unavailable", "op", op, "error", err)
	}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	c.remote(ctx, "get", func(ctx context.Context) error {
		var err error
		val, found, err = c.l2.Get(ctx, key)
		return err
	})
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes to L1 and, best effort, to L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	c.remote(ctx, "set", func(ctx context.Context) error {
		return c.l2.Set(ctx, key, value, ttl)
	})
	return nil
}

// Delete removes from L1 and, best effort, from L2.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	c.remote(ctx, "delete", func(ctx context.Context) error {
		return c.l2.Delete(ctx, key)
	})
	return nil
}
