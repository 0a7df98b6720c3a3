// Package procpool bounds how many executor subprocesses run at once.
package procpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent subprocesses using a weighted semaphore. Every
// executor that spawns a CLI shares one Pool so parallel submissions cannot
// exhaust the host.
type Pool struct {
	sem   *semaphore.Weighted
	limit int
	busy  atomic.Int64
}

// New creates a Pool that admits at most limit concurrent runs. Limits
// below one are raised to one.
func New(limit int) *Pool {
	limit = max(limit, 1)
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Run waits for a slot, runs fn and releases the slot. It returns ctx.Err()
// if ctx ends while waiting. A nil Pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.busy.Add(1)
	defer func() {
		p.busy.Add(-1)
		p.sem.Release(1)
	}()
	return fn()
}

// Busy returns the number of runs currently holding a slot.
func (p *Pool) Busy() int {
	if p == nil {
		return 0
	}
	return int(p.busy.Load())
}

// Limit returns the configured concurrency.
func (p *Pool) Limit() int {
	if p == nil {
		return 0
	}
	return p.limit
}
