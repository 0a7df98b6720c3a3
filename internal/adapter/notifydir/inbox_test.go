package notifydir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain"
	"github.com/hexswarm/hexswarm/internal/domain/notification"
	"github.com/hexswarm/hexswarm/internal/domain/task"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newInbox(t *testing.T) *Inbox {
	t.Helper()
	in, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in.now = func() time.Time { return base }
	return in
}

func completion(id, agent string, at time.Time) notification.Completion {
	return notification.Completion{
		TaskID:      id,
		AgentName:   agent,
		Status:      task.StatusCompleted,
		Summary:     "done " + id,
		CompletedAt: at,
	}
}

func TestNotifyWritesPendingFile(t *testing.T) {
	in := newInbox(t)
	if err := in.Notify(context.Background(), completion("task_a", "codex", base)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	want := filepath.Join(in.dir, "pending", "codex_task-a_"+strconv.FormatInt(base.Unix(), 10)+".json")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s: %v", want, err)
	}
}

func TestPendingOrderAndFilter(t *testing.T) {
	in := newInbox(t)
	ctx := context.Background()
	for _, c := range []notification.Completion{
		completion("late", "codex", base.Add(2*time.Minute)),
		completion("early", "codex", base),
		completion("other", "gemini", base.Add(time.Minute)),
	} {
		if err := in.Notify(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(in.dir, "pending", "junk.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := in.Pending(ctx, "")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(all) != 3 || all[0].TaskID != "early" || all[1].TaskID != "other" || all[2].TaskID != "late" {
		t.Fatalf("order = %v", ids(all))
	}

	codex, err := in.Pending(ctx, "codex")
	if err != nil {
		t.Fatal(err)
	}
	if len(codex) != 2 {
		t.Errorf("codex notices = %v", ids(codex))
	}
}

func TestAcknowledge(t *testing.T) {
	in := newInbox(t)
	ctx := context.Background()
	if err := in.Notify(ctx, completion("task_ack", "hex", base)); err != nil {
		t.Fatal(err)
	}
	pending, _ := in.Pending(ctx, "")
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}
	if err := in.Acknowledge(ctx, pending[0]); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if again, _ := in.Pending(ctx, ""); len(again) != 0 {
		t.Errorf("still pending: %v", ids(again))
	}
	if _, err := os.Stat(filepath.Join(in.dir, "processed", pending[0].Ref)); err != nil {
		t.Errorf("not moved to processed: %v", err)
	}
	if err := in.Acknowledge(ctx, pending[0]); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second ack err = %v, want ErrNotFound", err)
	}
	if err := in.Acknowledge(ctx, notification.Entry{Ref: "../escape.json"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("traversal err = %v, want ErrValidation", err)
	}
}

func TestPrune(t *testing.T) {
	in := newInbox(t)
	ctx := context.Background()
	for _, c := range []notification.Completion{
		completion("old", "codex", base.Add(-48*time.Hour)),
		completion("new", "codex", base.Add(-time.Hour)),
	} {
		if err := in.Notify(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	pending, _ := in.Pending(ctx, "")
	for _, e := range pending {
		if err := in.Acknowledge(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(in.dir, "processed", "broken.json"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := in.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2 (old + broken)", n)
	}
	left, _ := os.ReadDir(filepath.Join(in.dir, "processed"))
	if len(left) != 1 {
		t.Errorf("processed left = %d, want 1", len(left))
	}
}

func ids(es []notification.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.TaskID
	}
	return out
}
