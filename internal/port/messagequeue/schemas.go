package messagequeue

import "time"

// TaskStatusPayload is the schema for hexswarm.tasks.status messages.
type TaskStatusPayload struct {
	TaskID    string    `json:"task_id"`
	Agent     string    `json:"agent"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// CompletionPayload is the schema for hexswarm.completions.{agent}
// messages. It mirrors notification.Completion; only the fields needed to
// route and deduplicate are checked here.
type CompletionPayload struct {
	TaskID    string `json:"task_id"`
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
}
