// Package coordinator implements the executor of the coordinating agent.
// The coordinator answers general requests itself and turns every other
// task type away so the caller delegates it to a specialist.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/executor"
)

// DefaultName is the agent name the coordinator registers under.
const DefaultName = "hex"

const descriptionPreview = 100

// Executor is the coordinator's executor.
type Executor struct {
	name string
}

var _ executor.Executor = (*Executor)(nil)

func init() {
	executor.Register(DefaultName, func(cfg map[string]string) (executor.Executor, error) {
		return New(cfg["name"]), nil
	})
}

// New creates a coordinator executor. An empty name uses DefaultName.
func New(name string) *Executor {
	if name == "" {
		name = DefaultName
	}
	return &Executor{name: name}
}

// Name returns the coordinator's agent name.
func (e *Executor) Name() string { return e.name }

// Capabilities returns the task types the coordinator completes itself.
func (e *Executor) Capabilities() []task.Type { return []task.Type{task.TypeGeneral} }

type coordination struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

// Execute completes general tasks with an acknowledgement and returns a
// failed result for every other type.
func (e *Executor) Execute(ctx context.Context, rec task.Record) (*task.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if rec.Request.Type != task.TypeGeneral {
		msg := fmt.Sprintf("%s does not execute %s tasks directly; delegate to a capable agent", e.name, rec.Request.Type)
		return &task.Result{
			TaskID:       rec.ID,
			Status:       task.StatusFailed,
			FilesCreated: []string{},
			Summary:      msg,
			Error:        msg,
		}, nil
	}

	data, err := json.Marshal(coordination{
		Message:     e.name + " coordination task completed",
		Description: truncate(rec.Request.Description, descriptionPreview),
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: marshal result: %w", err)
	}
	return &task.Result{
		TaskID:       rec.ID,
		Status:       task.StatusCompleted,
		Result:       data,
		FilesCreated: []string{},
		Summary:      e.name + " processed coordination request.",
	}, nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
