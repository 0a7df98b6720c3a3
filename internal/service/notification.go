package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/notification"
	"github.com/hexswarm/hexswarm/internal/port/messagequeue"
	"github.com/hexswarm/hexswarm/internal/port/notifier"
)

// NotificationRelay copies completions announced by remote agents on the
// message queue into the local inbox. Completions of the local agent are
// skipped; they were delivered locally already.
type NotificationRelay struct {
	queue messagequeue.Queue
	inbox notifier.Notifier
	agent string
}

// NewNotificationRelay creates a relay for the local agent.
func NewNotificationRelay(queue messagequeue.Queue, inbox notifier.Notifier, agent string) *NotificationRelay {
	return &NotificationRelay{queue: queue, inbox: inbox, agent: agent}
}

// Start subscribes to every agent's completion subject. The returned
// function stops the subscription.
func (r *NotificationRelay) Start(ctx context.Context) (func(), error) {
	stop, err := r.queue.Subscribe(ctx, messagequeue.SubjectCompletions+".>", r.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe completions: %w", err)
	}
	slog.Info("completion relay started", "agent", r.agent)
	return stop, nil
}

func (r *NotificationRelay) handle(ctx context.Context, subject string, data []byte) error {
	var c notification.Completion
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("unmarshal completion on %s: %w", subject, err)
	}
	if c.AgentName == r.agent {
		return nil
	}
	if err := r.inbox.Notify(ctx, c); err != nil {
		return fmt.Errorf("relay completion %s: %w", c.TaskID, err)
	}
	slog.Debug("completion relayed", "task_id", c.TaskID, "from", c.AgentName)
	return nil
}

// Pruner deletes processed notices older than a retention period.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

// RunPruner prunes once immediately and then every interval until ctx is
// done. A zero retention disables pruning.
func RunPruner(ctx context.Context, p Pruner, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	prune := func() {
		n, err := p.Prune(ctx, retention)
		if err != nil {
			slog.Warn("notification prune failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("pruned processed notifications", "count", n)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
