// Package notification defines the completion notice an agent emits when a
// task reaches a terminal state.
package notification

import (
	"encoding/json"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Completion signals that a task finished on some agent.
type Completion struct {
	TaskID       string          `json:"task_id"`
	AgentName    string          `json:"agent_name"`
	Status       task.Status     `json:"status"`
	Summary      string          `json:"summary"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	FilesCreated []string        `json:"files_created,omitempty"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// FromRecord builds the completion notice for a terminal record.
func FromRecord(agent string, rec *task.Record) Completion {
	c := Completion{
		TaskID:    rec.ID,
		AgentName: agent,
		Status:    rec.Status,
		Error:     rec.Error,
	}
	if rec.CompletedAt != nil {
		c.CompletedAt = *rec.CompletedAt
	}
	if rec.Result != nil {
		c.Summary = rec.Result.Summary
		c.Result = rec.Result.Result
		c.FilesCreated = rec.Result.FilesCreated
	}
	if c.Summary == "" {
		c.Summary = string(rec.Status)
	}
	return c
}

// Entry is a completion read back from an inbox, with the opaque handle
// needed to acknowledge it.
type Entry struct {
	Completion
	Ref string `json:"-"`
}
