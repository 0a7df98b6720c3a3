package filestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"

	"github.com/hexswarm/hexswarm/internal/domain"
)

var errLockHeld = errors.New("lock held by another writer")

// withLock runs fn while holding the exclusive file lock for task id. The
// lock is an OS-level advisory lock, so it also excludes other processes
// sharing the same root.
func (s *Store) withLock(ctx context.Context, id string, fn func() error) error {
	lk := flock.New(s.lockPath(id))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.LockInitialBackoff
	b.MaxInterval = s.opts.LockMaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := lk.TryLock()
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("lock task %s: %w", id, err))
		}
		if !ok {
			return struct{}{}, errLockHeld
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.opts.LockAttempts))) //nolint:gosec // attempts >= 1
	if err != nil {
		if errors.Is(err, errLockHeld) {
			return fmt.Errorf("%w: task %s still locked after %d attempts", domain.ErrBusy, id, s.opts.LockAttempts)
		}
		return err
	}
	defer func() { _ = lk.Unlock() }()

	return fn()
}
