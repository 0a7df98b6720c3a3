package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/notification"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/messagequeue"
)

// chanQueue is a messagequeue.Queue that hands the subscribed handler to
// the test.
type chanQueue struct {
	subject string
	handler messagequeue.Handler
	subErr  error
}

func (q *chanQueue) Publish(context.Context, string, []byte) error { return nil }
func (q *chanQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	if q.subErr != nil {
		return nil, q.subErr
	}
	q.subject, q.handler = subject, h
	return func() {}, nil
}
func (q *chanQueue) Drain() error      { return nil }
func (q *chanQueue) Close() error      { return nil }
func (q *chanQueue) IsConnected() bool { return true }

type memNotifier struct {
	mu  sync.Mutex
	got []notification.Completion
}

func (m *memNotifier) Name() string { return "mem" }
func (m *memNotifier) Notify(_ context.Context, c notification.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, c)
	return nil
}

func TestNotificationRelay(t *testing.T) {
	q := &chanQueue{}
	inbox := &memNotifier{}
	relay := NewNotificationRelay(q, inbox, "hex")

	if _, err := relay.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if q.subject != "hexswarm.completions.>" {
		t.Fatalf("subscribed to %q", q.subject)
	}

	remote, _ := json.Marshal(notification.Completion{TaskID: "task_1", AgentName: "codex", Status: task.StatusCompleted})
	local, _ := json.Marshal(notification.Completion{TaskID: "task_2", AgentName: "hex", Status: task.StatusCompleted})
	for _, data := range [][]byte{remote, local} {
		if err := q.handler(context.Background(), "hexswarm.completions.x", data); err != nil {
			t.Fatal(err)
		}
	}
	if len(inbox.got) != 1 || inbox.got[0].TaskID != "task_1" {
		t.Fatalf("relayed %+v", inbox.got)
	}

	if err := q.handler(context.Background(), "hexswarm.completions.x", []byte("{")); err == nil {
		t.Fatal("malformed payload should fail so it is redelivered")
	}
}

func TestNotificationRelaySubscribeError(t *testing.T) {
	relay := NewNotificationRelay(&chanQueue{subErr: errors.New("no stream")}, &memNotifier{}, "hex")
	if _, err := relay.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type countingPruner struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPruner) Prune(context.Context, time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 1, nil
}

func (p *countingPruner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRunPruner(t *testing.T) {
	p := &countingPruner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPruner(ctx, p, time.Hour, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("pruner did not tick")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestRunPrunerDisabled(t *testing.T) {
	p := &countingPruner{}
	RunPruner(context.Background(), p, 0, time.Millisecond)
	if p.count() != 0 {
		t.Fatal("zero retention must not prune")
	}
}
