// Package broadcast defines the port for broadcasting task events to connected clients.
package broadcast

import "context"

// EventTaskStatus is emitted on every persisted task transition.
const EventTaskStatus = "task.status"

// TaskStatusEvent is the payload of EventTaskStatus.
type TaskStatusEvent struct {
	TaskID string `json:"task_id"`
	Agent  string `json:"agent"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
