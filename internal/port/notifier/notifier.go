// Package notifier defines the completion notification ports.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/hexswarm/hexswarm/internal/domain/notification"
)

// Notifier delivers completion notices to some audience.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "inbox", "nats").
	Name() string

	// Notify delivers a completion notice.
	Notify(ctx context.Context, c notification.Completion) error
}

// Inbox is a notifier whose notices can be read back and acknowledged.
type Inbox interface {
	// Pending returns unacknowledged notices, oldest first. An empty agent
	// matches every agent.
	Pending(ctx context.Context, agent string) ([]notification.Entry, error)

	// Acknowledge marks a notice as processed.
	Acknowledge(ctx context.Context, e notification.Entry) error
}

// Fanout delivers each notice to every notifier. Failures of one notifier
// do not stop delivery to the others.
type Fanout []Notifier

// Name returns "fanout".
func (f Fanout) Name() string { return "fanout" }

// Notify delivers c to all notifiers and joins their errors.
func (f Fanout) Notify(ctx context.Context, c notification.Completion) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
