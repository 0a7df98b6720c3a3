package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hexswarm/hexswarm/internal/domain/notification"
	"github.com/hexswarm/hexswarm/internal/port/messagequeue"
	"github.com/hexswarm/hexswarm/internal/port/notifier"
	"github.com/hexswarm/hexswarm/internal/resilience"
)

// CompletionPublisher announces completions on
// hexswarm.completions.{agent}.
type CompletionPublisher struct {
	q       messagequeue.Queue
	breaker *resilience.Breaker
}

var _ notifier.Notifier = (*CompletionPublisher)(nil)

// NewCompletionPublisher creates a publisher. breaker may be nil.
func NewCompletionPublisher(q messagequeue.Queue, breaker *resilience.Breaker) *CompletionPublisher {
	return &CompletionPublisher{q: q, breaker: breaker}
}

// Name returns the notifier name.
func (p *CompletionPublisher) Name() string { return "nats" }

// Notify publishes c.
func (p *CompletionPublisher) Notify(ctx context.Context, c notification.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal completion %s: %w", c.TaskID, err)
	}
	subject := messagequeue.CompletionSubject(c.AgentName)
	publish := func(ctx context.Context) error { return p.q.Publish(ctx, subject, data) }
	if p.breaker == nil {
		return publish(ctx)
	}
	return p.breaker.ExecuteContext(ctx, publish)
}
