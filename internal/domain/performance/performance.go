// Package performance defines historical per-agent outcome samples.
package performance

import (
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Sample is one finished task as seen by the performance log.
type Sample struct {
	Agent           string    `json:"agent_name"`
	TaskType        task.Type `json:"task_type"`
	Success         bool      `json:"success"`
	DurationSeconds float64   `json:"duration_seconds"`
	TokensUsed      int       `json:"tokens_used"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Stats aggregates the samples of one agent for one task type.
type Stats struct {
	TaskType           task.Type `json:"task_type"`
	Success            int       `json:"success"`
	Failure            int       `json:"failure"`
	N                  int       `json:"n"`
	AvgDurationSeconds float64   `json:"avg_duration_seconds"`
	AvgTokensUsed      float64   `json:"avg_tokens_used"`
}

// SuccessRate is Success / (Success + Failure), or zero without samples.
func (s Stats) SuccessRate() float64 {
	total := s.Success + s.Failure
	if total == 0 {
		return 0
	}
	return float64(s.Success) / float64(total)
}

// Report is the per-task-type breakdown for one agent.
type Report struct {
	Agent string           `json:"agent"`
	Stats map[string]Stats `json:"stats"`
}
