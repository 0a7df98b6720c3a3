// Package cache defines the port interface for caching terminal task records.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const recordPrefix = "task."

// RecordKey returns the cache key for a task record.
func RecordKey(id string) string { return recordPrefix + id }

// Records stores terminal task records in a Cache. Only terminal records
// are cached because they never change again.
type Records struct {
	c   Cache
	ttl time.Duration
}

// NewRecords wraps c. Entries expire after ttl.
func NewRecords(c Cache, ttl time.Duration) *Records {
	return &Records{c: c, ttl: ttl}
}

// Get returns a cached record.
func (r *Records) Get(ctx context.Context, id string) (task.Record, bool, error) {
	data, ok, err := r.c.Get(ctx, RecordKey(id))
	if err != nil || !ok {
		return task.Record{}, false, err
	}
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is a miss; drop it so the store is consulted.
		_ = r.c.Delete(ctx, RecordKey(id))
		return task.Record{}, false, nil
	}
	return rec, true, nil
}

// Put caches rec if it is terminal and reports whether it was stored.
func (r *Records) Put(ctx context.Context, rec *task.Record) (bool, error) {
	if !rec.Status.IsTerminal() {
		return false, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	if err := r.c.Set(ctx, RecordKey(rec.ID), data, r.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Forget removes a record from the cache.
func (r *Records) Forget(ctx context.Context, id string) error {
	return r.c.Delete(ctx, RecordKey(id))
}
