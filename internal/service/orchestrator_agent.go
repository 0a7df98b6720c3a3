package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/domain/resource"
	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// AgentInfo describes the local agent.
type AgentInfo struct {
	Name         string   `json:"name"`
	DID          string   `json:"did"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
	Version      string   `json:"version"`
}

// AgentStatus is the load of the local agent.
type AgentStatus struct {
	Status        string  `json:"status"`
	CurrentTask   *string `json:"current_task"`
	QueueDepth    int     `json:"queue_depth"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// AgentResources is the ledger summary plus delegation recommendations.
type AgentResources struct {
	Agents          map[string]resource.Snapshot `json:"agents"`
	Recommendations map[string]string            `json:"recommendations"`
}

// NotificationView is one pending completion notice.
type NotificationView struct {
	TaskID      string      `json:"task_id"`
	AgentName   string      `json:"agent_name"`
	Status      task.Status `json:"status"`
	Summary     string      `json:"summary"`
	CompletedAt time.Time   `json:"completed_at"`
}

// NotificationsResponse lists pending completion notices.
type NotificationsResponse struct {
	Count         int                `json:"count"`
	Notifications []NotificationView `json:"notifications"`
}

// AgentInfo reports identity and capabilities.
func (o *Orchestrator) AgentInfo() AgentInfo {
	caps := make([]string, 0, len(o.cfg.Capabilities))
	for _, c := range o.cfg.Capabilities {
		caps = append(caps, string(c))
	}
	status := "ready"
	if o.inFlight() > 0 {
		status = "busy"
	}
	return AgentInfo{
		Name:         o.cfg.Agent,
		DID:          o.cfg.DID,
		Capabilities: caps,
		Status:       status,
		Version:      o.cfg.Version,
	}
}

// AgentStatus reports the task currently executing, if any, and how many
// tasks are pending or running.
func (o *Orchestrator) AgentStatus() AgentStatus {
	o.mu.RLock()
	var current *task.Record
	depth := 0
	for _, rec := range o.active {
		if rec.Status.IsTerminal() {
			continue
		}
		depth++
		if rec.Status == task.StatusRunning && (current == nil || rec.StartedAt.Before(*current.StartedAt)) {
			current = rec
		}
	}
	o.mu.RUnlock()

	out := AgentStatus{
		Status:        "idle",
		QueueDepth:    depth,
		UptimeSeconds: o.now().Sub(o.started).Seconds(),
	}
	if current != nil {
		id := current.ID
		out.Status = "working"
		out.CurrentTask = &id
	}
	return out
}

// AgentResources summarises the resource ledger and names the best agent
// for code and research work.
func (o *Orchestrator) AgentResources() AgentResources {
	out := AgentResources{
		Agents:          map[string]resource.Snapshot{},
		Recommendations: map[string]string{},
	}
	if o.tracker == nil {
		return out
	}
	out.Agents = o.tracker.Summary()
	for _, t := range []task.Type{task.TypeCode, task.TypeResearch} {
		name, ok := o.tracker.BestAgentFor(t)
		if !ok {
			name = o.cfg.Fallback + " (all agents exhausted)"
		}
		out.Recommendations[string(t)] = name
	}
	return out
}

// AgentPerformance reports historical outcomes for agent, or for the local
// agent when agent is empty.
func (o *Orchestrator) AgentPerformance(ctx context.Context, agent string) (performance.Report, error) {
	if agent == "" {
		agent = o.cfg.Agent
	}
	if o.perf == nil {
		return performance.Report{Agent: agent, Stats: map[string]performance.Stats{}}, nil
	}
	rep, err := o.perf.Apply(ctx, StatsQuery{Agent: agent})
	if err != nil {
		return performance.Report{}, fmt.Errorf("performance report for %s: %w", agent, err)
	}
	return rep, nil
}

// CheckNotifications lists pending completion notices for agent (all agents
// when empty), oldest first. With acknowledge set, the listed notices are
// marked processed; failures to acknowledge are logged.
func (o *Orchestrator) CheckNotifications(ctx context.Context, agent string, acknowledge bool) (NotificationsResponse, error) {
	out := NotificationsResponse{Notifications: []NotificationView{}}
	if o.inbox == nil {
		return out, nil
	}
	entries, err := o.inbox.Pending(ctx, agent)
	if err != nil {
		return out, fmt.Errorf("read notifications: %w", err)
	}
	for _, e := range entries {
		out.Notifications = append(out.Notifications, NotificationView{
			TaskID:      e.TaskID,
			AgentName:   e.AgentName,
			Status:      e.Status,
			Summary:     e.Summary,
			CompletedAt: e.CompletedAt,
		})
		if acknowledge {
			if err := o.inbox.Acknowledge(ctx, e); err != nil {
				slog.WarnContext(ctx, "acknowledge notification failed", "task_id", e.TaskID, "error", err)
			}
		}
	}
	out.Count = len(out.Notifications)
	return out, nil
}

func (o *Orchestrator) inFlight() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.running)
}
