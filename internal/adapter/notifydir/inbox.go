// Package notifydir implements the completion inbox as a directory of JSON
// files, one per notice:
//
//	<dir>/pending/<agent>_<task_id>_<unix>.json
//	<dir>/processed/<same name>
package notifydir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hexswarm/hexswarm/internal/atomicfile"
	"github.com/hexswarm/hexswarm/internal/domain"
	"github.com/hexswarm/hexswarm/internal/domain/notification"
	"github.com/hexswarm/hexswarm/internal/port/notifier"
)

const (
	pendingDir   = "pending"
	processedDir = "processed"
)

// Inbox stores completion notices on the local filesystem.
type Inbox struct {
	dir string
	now func() time.Time
}

var (
	_ notifier.Notifier = (*Inbox)(nil)
	_ notifier.Inbox    = (*Inbox)(nil)
)

// New creates the inbox directories under dir.
func New(dir string) (*Inbox, error) {
	for _, sub := range []string{pendingDir, processedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("notifydir: create %s: %w", sub, err)
		}
	}
	return &Inbox{dir: dir, now: time.Now}, nil
}

// Name returns the notifier name.
func (in *Inbox) Name() string { return "inbox" }

// Notify writes c to the pending directory.
func (in *Inbox) Notify(_ context.Context, c notification.Completion) error {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = in.now().UTC()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal completion %s: %w", c.TaskID, err)
	}
	name := fmt.Sprintf("%s_%s_%d.json", safeName(c.AgentName), safeName(c.TaskID), c.CompletedAt.Unix())
	if err := atomicfile.WriteFile(filepath.Join(in.dir, pendingDir, name), data, 0o644); err != nil {
		return fmt.Errorf("write completion %s: %w", c.TaskID, err)
	}
	return nil
}

// Pending returns unacknowledged notices ordered by completion time.
// Unreadable files are skipped.
func (in *Inbox) Pending(ctx context.Context, agent string) ([]notification.Entry, error) {
	dir := filepath.Join(in.dir, pendingDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list pending notices: %w", err)
	}

	var out []notification.Entry
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		c, err := readCompletion(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Debug("skipping unreadable notice", "file", e.Name(), "error", err)
			continue
		}
		if agent != "" && c.AgentName != agent {
			continue
		}
		out = append(out, notification.Entry{Completion: c, Ref: e.Name()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}

// Acknowledge moves a notice from pending to processed.
func (in *Inbox) Acknowledge(_ context.Context, e notification.Entry) error {
	if e.Ref == "" || e.Ref != filepath.Base(e.Ref) {
		return fmt.Errorf("%w: invalid notice reference %q", domain.ErrValidation, e.Ref)
	}
	from := filepath.Join(in.dir, pendingDir, e.Ref)
	to := filepath.Join(in.dir, processedDir, e.Ref)
	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("notice %s: %w", e.Ref, domain.ErrNotFound)
		}
		return fmt.Errorf("acknowledge %s: %w", e.Ref, err)
	}
	return nil
}

// Prune deletes processed notices that completed more than maxAge ago, and
// processed files that cannot be parsed. It returns the number removed.
func (in *Inbox) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	dir := filepath.Join(in.dir, processedDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list processed notices: %w", err)
	}
	cutoff := in.now().Add(-maxAge)

	removed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		c, err := readCompletion(path)
		if err == nil && !c.CompletedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func readCompletion(path string) (notification.Completion, error) {
	var c notification.Completion
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from our own directory listing
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(data, &c)
	return c, err
}

// safeName keeps file names to a single path element.
func safeName(s string) string {
	return strings.NewReplacer("/", "-", `\`, "-", "_", "-").Replace(s)
}
