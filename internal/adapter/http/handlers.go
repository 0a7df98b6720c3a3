package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/service"
)

// Orchestrator is the part of service.Orchestrator the REST API exposes.
type Orchestrator interface {
	Submit(ctx context.Context, args map[string]any) (service.SubmitResponse, error)
	Status(ctx context.Context, id string) (service.StatusResponse, error)
	Result(ctx context.Context, id string) (service.ResultResponse, error)
	Cancel(ctx context.Context, id, reason string) (service.CancelResponse, error)
	AgentInfo() service.AgentInfo
	AgentStatus() service.AgentStatus
	AgentResources() service.AgentResources
	AgentPerformance(ctx context.Context, agent string) (performance.Report, error)
	CheckNotifications(ctx context.Context, agent string, acknowledge bool) (service.NotificationsResponse, error)
}

var _ Orchestrator = (*service.Orchestrator)(nil)

// Handlers serves the task API.
type Handlers struct {
	Tasks Orchestrator
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// SubmitTask runs a task and responds once it is terminal. The body is
// the same object the submit_task tool accepts.
func (h *Handlers) SubmitTask(w http.ResponseWriter, r *http.Request) {
	args, ok := readJSON[map[string]any](w, r)
	if !ok {
		return
	}
	if args == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	resp, err := h.Tasks.Submit(r.Context(), args)
	if err != nil {
		if resp.TaskID != "" {
			// The task exists on disk; its state can still be polled.
			w.Header().Set("Location", "/api/v1/tasks/"+resp.TaskID)
		}
		writeDomainError(w, r, err)
		return
	}
	if resp.Status == service.StatusRejected {
		writeJSON(w, http.StatusForbidden, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTaskStatus reports where a task is in its lifecycle.
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Tasks.Status(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, statusCode(resp.Status), resp)
}

// GetTaskResult returns the output of a finished task.
func (h *Handlers) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Tasks.Result(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, statusCode(resp.Status), resp)
}

// CancelTask cancels a pending or running task. The body, carrying an
// optional reason, may be empty.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.Tasks.Cancel(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	code := statusCode(resp.Status)
	if code == http.StatusOK && !resp.Success {
		code = http.StatusConflict
	}
	writeJSON(w, code, resp)
}

// GetAgent reports identity, capabilities and current load.
func (h *Handlers) GetAgent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		service.AgentInfo
		Load service.AgentStatus `json:"load"`
	}{h.Tasks.AgentInfo(), h.Tasks.AgentStatus()})
}

// GetResources returns the resource ledger and routing recommendations.
func (h *Handlers) GetResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Tasks.AgentResources())
}

// GetPerformance returns historical outcome statistics for ?agent=.
func (h *Handlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Tasks.AgentPerformance(r.Context(), r.URL.Query().Get("agent"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetNotifications lists pending completion notices. ?acknowledge=true
// marks the returned notices processed.
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ack := false
	if v := q.Get("acknowledge"); v != "" {
		var err error
		if ack, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "acknowledge must be a boolean")
			return
		}
	}
	resp, err := h.Tasks.CheckNotifications(r.Context(), q.Get("agent"), ack)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusCode(s task.Status) int {
	if s == task.StatusUnknown {
		return http.StatusNotFound
	}
	return http.StatusOK
}
