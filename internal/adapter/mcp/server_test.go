package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	hxmcp "github.com/hexswarm/hexswarm/internal/adapter/mcp"
	"github.com/hexswarm/hexswarm/internal/domain"
	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/service"
)

// --- Mocks ---

type mockOrchestrator struct {
	submitted map[string]any
	cancelled string
	reason    string
	acked     bool
	agent     string
	err       error
}

func (m *mockOrchestrator) Submit(_ context.Context, args map[string]any) (service.SubmitResponse, error) {
	m.submitted = args
	if m.err != nil {
		return service.SubmitResponse{}, m.err
	}
	return service.SubmitResponse{TaskID: "task_1", Status: task.StatusCompleted, Summary: "ok"}, nil
}

func (m *mockOrchestrator) Status(_ context.Context, id string) (service.StatusResponse, error) {
	if m.err != nil {
		return service.StatusResponse{}, m.err
	}
	return service.StatusResponse{TaskID: id, Status: task.StatusRunning}, nil
}

func (m *mockOrchestrator) Result(_ context.Context, id string) (service.ResultResponse, error) {
	return service.ResultResponse{TaskID: id, Status: task.StatusUnknown}, nil
}

func (m *mockOrchestrator) Cancel(_ context.Context, id, reason string) (service.CancelResponse, error) {
	m.cancelled, m.reason = id, reason
	return service.CancelResponse{TaskID: id, Success: true, Status: task.StatusCancelled}, nil
}

func (m *mockOrchestrator) AgentInfo() service.AgentInfo {
	return service.AgentInfo{Name: "gemini", Capabilities: []string{"research"}, Status: "ready"}
}

func (m *mockOrchestrator) AgentStatus() service.AgentStatus {
	return service.AgentStatus{Status: "idle"}
}

func (m *mockOrchestrator) AgentResources() service.AgentResources {
	return service.AgentResources{Recommendations: map[string]string{"research": "gemini"}}
}

func (m *mockOrchestrator) AgentPerformance(_ context.Context, agent string) (performance.Report, error) {
	m.agent = agent
	return performance.Report{Agent: agent, Stats: map[string]performance.Stats{}}, nil
}

func (m *mockOrchestrator) CheckNotifications(_ context.Context, agent string, ack bool) (service.NotificationsResponse, error) {
	m.agent, m.acked = agent, ack
	return service.NotificationsResponse{Notifications: []service.NotificationView{}}, nil
}

func newServer(m *mockOrchestrator) *hxmcp.Server {
	return hxmcp.NewServer(hxmcp.ServerConfig{Name: "gemini", Version: "0.1.0"}, m)
}

func call(t *testing.T, s *hxmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func decode(t *testing.T, result *mcplib.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return out
}

// --- Tests ---

func TestToolRegistration(t *testing.T) {
	tools := newServer(&mockOrchestrator{}).MCPServer().ListTools()

	expected := []string{
		"agent_info", "agent_status", "submit_task", "task_status", "task_result",
		"cancel_task", "agent_resources", "agent_performance", "check_notifications",
	}
	if len(tools) != len(expected) {
		t.Fatalf("expected %d tools, got %d", len(expected), len(tools))
	}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestSubmitTaskPassesArguments(t *testing.T) {
	m := &mockOrchestrator{}
	out := decode(t, call(t, newServer(m), "submit_task", map[string]any{
		"type":        "research",
		"description": "survey caches",
		"auth":        map[string]any{"did": "did:example:1"},
	}))
	if out["task_id"] != "task_1" || out["status"] != "completed" {
		t.Fatalf("unexpected response: %v", out)
	}
	if m.submitted["description"] != "survey caches" {
		t.Fatalf("arguments not passed through: %v", m.submitted)
	}
	if auth, _ := m.submitted["auth"].(map[string]any); auth["did"] != "did:example:1" {
		t.Fatalf("auth not passed through: %v", m.submitted["auth"])
	}
}

func TestSubmitTaskValidationError(t *testing.T) {
	m := &mockOrchestrator{err: fmt.Errorf("%w: description is required", domain.ErrValidation)}
	result := call(t, newServer(m), "submit_task", map[string]any{"type": "code"})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	text := result.Content[0].(mcplib.TextContent).Text
	if text != "validation failed: description is required" {
		t.Fatalf("error text = %q", text)
	}
}

func TestTaskStatusMissingArg(t *testing.T) {
	result := call(t, newServer(&mockOrchestrator{}), "task_status", nil)
	if !result.IsError {
		t.Fatal("expected error result for missing task_id")
	}
}

func TestTaskStatusAndResult(t *testing.T) {
	s := newServer(&mockOrchestrator{})
	if out := decode(t, call(t, s, "task_status", map[string]any{"task_id": "task_9"})); out["status"] != "running" {
		t.Fatalf("status = %v", out)
	}
	if out := decode(t, call(t, s, "task_result", map[string]any{"task_id": "nope"})); out["status"] != "unknown" {
		t.Fatalf("result = %v", out)
	}
}

func TestTaskStatusStoreFailure(t *testing.T) {
	m := &mockOrchestrator{err: fmt.Errorf("load: %w", domain.ErrBusy)}
	if result := call(t, newServer(m), "task_status", map[string]any{"task_id": "x"}); !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestCancelTask(t *testing.T) {
	m := &mockOrchestrator{}
	out := decode(t, call(t, newServer(m), "cancel_task", map[string]any{"task_id": "task_3", "reason": "stale"}))
	if out["success"] != true {
		t.Fatalf("cancel = %v", out)
	}
	if m.cancelled != "task_3" || m.reason != "stale" {
		t.Fatalf("cancelled %q reason %q", m.cancelled, m.reason)
	}
}

func TestAgentTools(t *testing.T) {
	m := &mockOrchestrator{}
	s := newServer(m)

	if out := decode(t, call(t, s, "agent_info", nil)); out["name"] != "gemini" {
		t.Fatalf("agent_info = %v", out)
	}
	if out := decode(t, call(t, s, "agent_status", nil)); out["status"] != "idle" {
		t.Fatalf("agent_status = %v", out)
	}
	out := decode(t, call(t, s, "agent_resources", nil))
	if recs, _ := out["recommendations"].(map[string]any); recs["research"] != "gemini" {
		t.Fatalf("agent_resources = %v", out)
	}
	if out := decode(t, call(t, s, "agent_performance", map[string]any{"agent_name": "codex"})); out["agent"] != "codex" {
		t.Fatalf("agent_performance = %v", out)
	}
}

func TestCheckNotifications(t *testing.T) {
	m := &mockOrchestrator{}
	out := decode(t, call(t, newServer(m), "check_notifications", map[string]any{
		"agent_name":  "codex",
		"acknowledge": true,
	}))
	if out["count"] != float64(0) {
		t.Fatalf("count = %v", out["count"])
	}
	if m.agent != "codex" || !m.acked {
		t.Fatalf("agent %q acked %v", m.agent, m.acked)
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := hxmcp.AuthMiddleware("s3cret", next)

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusForbidden},
		{"s3cret", http.StatusForbidden},
		{"Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/mcp/sse", http.NoBody)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("header %q: got %d, want %d", tt.header, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	hxmcp.AuthMiddleware("", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled auth: %d", rec.Code)
	}
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	s := hxmcp.NewServer(hxmcp.ServerConfig{Name: "x", Version: "1", Transport: "carrier-pigeon"}, &mockOrchestrator{})
	if err := s.Serve(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
