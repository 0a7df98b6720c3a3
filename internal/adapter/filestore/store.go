// Package filestore implements the task store port as a directory tree with
// one subdirectory per task status and one JSON file per task.
//
// Layout:
//
//	<root>/<status>/<task_id>.json      authoritative record
//	<root>/<status>/<task_id>.json.tmp  transient, during a write
//	<root>/<task_id>.lock               per-task cross-process lock
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hexswarm/hexswarm/internal/atomicfile"
	"github.com/hexswarm/hexswarm/internal/domain"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/taskstore"
)

const (
	recordExt = ".json"
	lockExt   = ".lock"
)

// Options tunes lock acquisition.
type Options struct {
	LockAttempts       int
	LockInitialBackoff time.Duration
	LockMaxBackoff     time.Duration
}

// DefaultOptions returns the lock settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		LockAttempts:       10,
		LockInitialBackoff: 10 * time.Millisecond,
		LockMaxBackoff:     500 * time.Millisecond,
	}
}

// LoadError reports a single task file that could not be read or parsed.
type LoadError struct {
	TaskID string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load task %s (%s): %v", e.TaskID, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store is a crash-consistent, lock-protected task store on the local filesystem.
type Store struct {
	root   string
	opts   Options
	writer atomicfile.Writer
}

var _ taskstore.Store = (*Store)(nil)

// New creates the status directories under root and returns a Store.
func New(root string, opts Options) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("filestore: root is required")
	}
	if opts.LockAttempts < 1 {
		opts.LockAttempts = 1
	}
	if opts.LockInitialBackoff <= 0 {
		opts.LockInitialBackoff = DefaultOptions().LockInitialBackoff
	}
	if opts.LockMaxBackoff < opts.LockInitialBackoff {
		opts.LockMaxBackoff = opts.LockInitialBackoff
	}
	for _, st := range task.Statuses {
		if err := os.MkdirAll(filepath.Join(root, string(st)), 0o755); err != nil {
			return nil, fmt.Errorf("filestore: create %s dir: %w", st, err)
		}
	}
	return &Store{root: root, opts: opts, writer: atomicfile.Writer{Perm: 0o644}}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(id string, st task.Status) string {
	return filepath.Join(s.root, string(st), id+recordExt)
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.root, id+lockExt)
}

// Save persists rec under its status directory. The sequence is: take the
// task lock, remove copies under every other status, write the temp file,
// fsync it, rename it into place, release the lock. If the write fails
// after the previous copy was removed, that copy is put back.
func (s *Store) Save(ctx context.Context, rec task.Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: cannot persist status %q", domain.ErrValidation, rec.Status)
	}
	return s.withLock(ctx, rec.ID, func() error {
		// A previous copy that cannot be read is simply replaced.
		prev, _ := s.Load(ctx, rec.ID)
		if err := s.write(&rec); err != nil {
			if prev.Outcome == taskstore.Found {
				s.restore(&prev.Record)
			}
			return err
		}
		return nil
	})
}

// Update reads the task inside its lock, so a transition decided by one
// process sees every transition already persisted by another. When the new
// copy cannot be written after the old one was removed, the old copy is put
// back so the task stays on disk.
func (s *Store) Update(ctx context.Context, id string, fn func(*task.Record) bool) (task.Record, bool, error) {
	if validateID(id) != nil {
		// Like Load, an id that cannot name a file names no task.
		return task.Record{}, false, fmt.Errorf("%w: task %q", domain.ErrNotFound, id)
	}
	var (
		out   task.Record
		moved bool
	)
	err := s.withLock(ctx, id, func() error {
		lk, err := s.Load(ctx, id)
		if err != nil {
			return err
		}
		if lk.Outcome != taskstore.Found {
			return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
		}
		cur := lk.Record
		out = cur
		if cur.Status.IsTerminal() {
			return nil
		}
		next := cur.Clone()
		if !fn(&next) {
			return nil
		}
		if !next.Status.Valid() {
			return fmt.Errorf("%w: cannot persist status %q", domain.ErrValidation, next.Status)
		}
		if err := s.write(&next); err != nil {
			s.restore(&cur)
			return err
		}
		out, moved = next, true
		return nil
	})
	if err != nil {
		return task.Record{}, false, err
	}
	return out, moved, nil
}

// write replaces every copy of rec with one under rec.Status. The caller
// holds the task lock.
func (s *Store) write(rec *task.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", rec.ID, err)
	}
	if err := s.removeCopies(rec.ID, rec.Status); err != nil {
		return err
	}
	if err := s.writer.Write(s.path(rec.ID, rec.Status), data); err != nil {
		return fmt.Errorf("write task %s: %w", rec.ID, err)
	}
	return nil
}

// restore rewrites prev if a failed write left no copy of it. Best effort:
// the original write error is what the caller reports.
func (s *Store) restore(prev *task.Record) {
	if _, err := os.Stat(s.path(prev.ID, prev.Status)); !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := s.write(prev); err != nil {
		slog.Error("restore task after failed write", "task_id", prev.ID, "status", prev.Status, "error", err)
	}
}

// Delete removes every copy of a task under the task lock.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.withLock(ctx, id, func() error {
		return s.removeCopies(id, "")
	})
}

// removeCopies deletes the task file from every status directory except keep.
func (s *Store) removeCopies(id string, keep task.Status) error {
	for _, st := range task.Statuses {
		if st == keep {
			continue
		}
		if err := os.Remove(s.path(id, st)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale %s copy of %s: %w", st, id, err)
		}
	}
	return nil
}

// Load scans the status directories in task.Statuses order and returns the
// first match.
func (s *Store) Load(ctx context.Context, id string) (taskstore.Lookup, error) {
	if err := ctx.Err(); err != nil {
		return taskstore.Lookup{}, err
	}
	if validateID(id) != nil {
		return taskstore.Lookup{Outcome: taskstore.NotFound}, nil
	}
	for _, st := range task.Statuses {
		rec, err := s.readFile(s.path(id, st), st)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return taskstore.Lookup{}, err
		}
		return taskstore.Lookup{Outcome: taskstore.Found, Record: rec}, nil
	}
	return taskstore.Lookup{Outcome: taskstore.NotFound}, nil
}

// LoadAll returns every readable task. Unreadable tasks are reported in the
// joined error and left out of the map.
func (s *Store) LoadAll(ctx context.Context) (map[string]task.Record, error) {
	out := make(map[string]task.Record)
	var errs []error
	for _, st := range task.Statuses {
		recs, err := s.ListByStatus(ctx, st)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			errs = append(errs, err)
		}
		for _, rec := range recs {
			if _, dup := out[rec.ID]; !dup {
				out[rec.ID] = rec
			}
		}
	}
	return out, errors.Join(errs...)
}

// ListByStatus returns every readable task in one status directory, ordered
// by task ID.
func (s *Store) ListByStatus(ctx context.Context, st task.Status) ([]task.Record, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, st)
	}
	dir := filepath.Join(s.root, string(st))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", st, err)
	}

	var (
		out  []task.Record
		errs []error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		rec, err := s.readFile(filepath.Join(dir, name), st)
		if errors.Is(err, fs.ErrNotExist) {
			// Moved by a concurrent writer between ReadDir and open.
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, rec)
	}
	return out, errors.Join(errs...)
}

// readFile parses one task file. The directory it lives in is authoritative
// for the status.
func (s *Store) readFile(path string, st task.Status) (task.Record, error) {
	id := strings.TrimSuffix(filepath.Base(path), recordExt)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from validated id
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return task.Record{}, err
		}
		return task.Record{}, &LoadError{TaskID: id, Path: path, Err: err}
	}
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return task.Record{}, &LoadError{TaskID: id, Path: path, Err: err}
	}
	if rec.ID != id {
		return task.Record{}, &LoadError{TaskID: id, Path: path, Err: fmt.Errorf("file holds task %q", rec.ID)}
	}
	rec.Status = st
	return rec, nil
}

// validateID rejects identifiers that cannot be used as a single file name.
func validateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: task id is required", domain.ErrValidation)
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."), id[0] == '.':
		return fmt.Errorf("%w: invalid task id %q", domain.ErrValidation, id)
	}
	return nil
}
