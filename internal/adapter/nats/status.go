package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hexswarm/hexswarm/internal/port/broadcast"
	"github.com/hexswarm/hexswarm/internal/port/messagequeue"
	"github.com/hexswarm/hexswarm/internal/resilience"
)

// StatusPublisher mirrors task status events onto hexswarm.tasks.status.
// Publishing is best effort; failures are logged.
type StatusPublisher struct {
	q       messagequeue.Queue
	breaker *resilience.Breaker
	now     func() time.Time
}

var _ broadcast.Broadcaster = (*StatusPublisher)(nil)

// NewStatusPublisher creates a publisher. breaker may be nil.
func NewStatusPublisher(q messagequeue.Queue, breaker *resilience.Breaker) *StatusPublisher {
	return &StatusPublisher{q: q, breaker: breaker, now: time.Now}
}

// BroadcastEvent publishes task status events and ignores every other type.
func (p *StatusPublisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	if eventType != broadcast.EventTaskStatus {
		return
	}
	ev, ok := payload.(broadcast.TaskStatusEvent)
	if !ok {
		return
	}
	data, err := json.Marshal(messagequeue.TaskStatusPayload{
		TaskID:    ev.TaskID,
		Agent:     ev.Agent,
		Status:    ev.Status,
		Error:     ev.Error,
		ChangedAt: p.now().UTC(),
	})
	if err != nil {
		slog.Error("marshal task status", "error", err)
		return
	}

	publish := func(ctx context.Context) error {
		return p.q.Publish(ctx, messagequeue.SubjectTaskStatus, data)
	}
	if p.breaker != nil {
		err = p.breaker.ExecuteContext(ctx, publish)
	} else {
		err = publish(ctx)
	}
	if err != nil {
		slog.Debug("task status publish failed", "task_id", ev.TaskID, "error", err)
	}
}
