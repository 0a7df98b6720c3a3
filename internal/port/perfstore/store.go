// Package perfstore defines the historical performance sample store.
package perfstore

import (
	"context"

	"github.com/hexswarm/hexswarm/internal/domain/performance"
)

// Store appends samples and aggregates them per agent and task type.
type Store interface {
	Record(ctx context.Context, s performance.Sample) error
	Report(ctx context.Context, agent string) (performance.Report, error)
}
