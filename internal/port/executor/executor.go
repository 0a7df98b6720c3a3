// Package executor defines the pluggable executor port that performs the
// actual work of a task.
package executor

import (
	"context"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Executor runs a single task to completion.
//
// Execute must return when ctx is done; the orchestrator cancels ctx both
// on timeout and on an explicit cancellation request. A result with status
// failed is treated as an execution failure.
type Executor interface {
	// Name returns the agent name this executor acts for (e.g. "codex").
	Name() string

	// Capabilities returns the task types this executor accepts.
	Capabilities() []task.Type

	// Execute runs the task and returns its result.
	Execute(ctx context.Context, rec task.Record) (*task.Result, error)
}
