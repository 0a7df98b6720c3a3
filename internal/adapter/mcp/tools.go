package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hexswarm/hexswarm/internal/domain"
	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.agentInfoTool(),
		s.agentStatusTool(),
		s.submitTaskTool(),
		s.taskStatusTool(),
		s.taskResultTool(),
		s.cancelTaskTool(),
		s.agentResourcesTool(),
		s.agentPerformanceTool(),
		s.checkNotificationsTool(),
	)
}

func enumOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func (s *Server) agentInfoTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("agent_info",
			mcplib.WithDescription("Return agent identity and capabilities."),
		),
		Handler: func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
			return toolResultJSON(s.tasks.AgentInfo())
		},
	}
}

func (s *Server) agentStatusTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("agent_status",
			mcplib.WithDescription("Return agent availability and queue status."),
		),
		Handler: func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
			return toolResultJSON(s.tasks.AgentStatus())
		},
	}
}

func (s *Server) submitTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_task",
		mcplib.WithDescription("Submit a task to the agent and wait for its outcome."),
		mcplib.WithString("type",
			mcplib.Required(),
			mcplib.Enum(enumOf(task.Types)...),
			mcplib.Description("Kind of work"),
		),
		mcplib.WithString("description", mcplib.Required(), mcplib.Description("What to do")),
		mcplib.WithArray("files", mcplib.Items(map[string]any{"type": "string"}), mcplib.Description("Files relevant to the task")),
		mcplib.WithString("context", mcplib.Description("Background the agent should know")),
		mcplib.WithArray("constraints", mcplib.Items(map[string]any{"type": "string"})),
		mcplib.WithString("output_format", mcplib.Enum("text", "json", "file")),
		mcplib.WithString("priority", mcplib.Enum("low", "normal", "high")),
		mcplib.WithString("callback", mcplib.Description("Opaque callback reference, stored with the task")),
		mcplib.WithNumber("timeout_seconds", mcplib.Description("Execution deadline in seconds")),
		mcplib.WithObject("auth", mcplib.Description("Caller credentials: did or credential_did")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSubmitTask}
}

func (s *Server) taskStatusTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("task_status",
			mcplib.WithDescription("Get status of a task."),
			mcplib.WithString("task_id", mcplib.Required()),
		),
		Handler: s.handleTaskStatus,
	}
}

func (s *Server) taskResultTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("task_result",
			mcplib.WithDescription("Get result of a completed task."),
			mcplib.WithString("task_id", mcplib.Required()),
		),
		Handler: s.handleTaskResult,
	}
}

func (s *Server) cancelTaskTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("cancel_task",
			mcplib.WithDescription("Cancel a pending or running task."),
			mcplib.WithString("task_id", mcplib.Required()),
			mcplib.WithString("reason"),
		),
		Handler: s.handleCancelTask,
	}
}

func (s *Server) agentResourcesTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("agent_resources",
			mcplib.WithDescription("Get resource usage for all agents (context, tokens, capacity)."),
		),
		Handler: func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
			return toolResultJSON(s.tasks.AgentResources())
		},
	}
}

func (s *Server) agentPerformanceTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("agent_performance",
			mcplib.WithDescription("Historical success rate, duration and token usage per task type."),
			mcplib.WithString("agent_name", mcplib.Description("Agent to report on; defaults to this agent")),
		),
		Handler: s.handleAgentPerformance,
	}
}

func (s *Server) checkNotificationsTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("check_notifications",
			mcplib.WithDescription("Check for task completion notifications from other agents."),
			mcplib.WithString("agent_name", mcplib.Description("Filter by agent name")),
			mcplib.WithBoolean("acknowledge", mcplib.Description("Mark notifications as processed")),
		),
		Handler: s.handleCheckNotifications,
	}
}

func (s *Server) handleSubmitTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	if args == nil {
		args = map[string]any{}
	}
	resp, err := s.tasks.Submit(ctx, args)
	if err != nil {
		return toolError(ctx, "submit_task", err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleTaskStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	resp, err := s.tasks.Status(ctx, id)
	if err != nil {
		return toolError(ctx, "task_status", err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleTaskResult(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	resp, err := s.tasks.Result(ctx, id)
	if err != nil {
		return toolError(ctx, "task_result", err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleCancelTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	resp, err := s.tasks.Cancel(ctx, id, req.GetString("reason", ""))
	if err != nil {
		return toolError(ctx, "cancel_task", err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleAgentPerformance(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	rep, err := s.tasks.AgentPerformance(ctx, req.GetString("agent_name", ""))
	if err != nil {
		return toolError(ctx, "agent_performance", err), nil
	}
	return toolResultJSON(rep)
}

func (s *Server) handleCheckNotifications(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	resp, err := s.tasks.CheckNotifications(ctx, req.GetString("agent_name", ""), req.GetBool("acknowledge", false))
	if err != nil {
		return toolError(ctx, "check_notifications", err), nil
	}
	return toolResultJSON(resp)
}

// toolResultJSON renders v as indented JSON text.
func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// toolError reports a failed call as a tool error so the client sees the
// message. Validation messages are returned as-is; other failures are logged.
func toolError(ctx context.Context, tool string, err error) *mcplib.CallToolResult {
	if errors.Is(err, domain.ErrValidation) {
		return mcplib.NewToolResultError(err.Error())
	}
	slog.ErrorContext(ctx, "tool call failed", "tool", tool, "error", err)
	return mcplib.NewToolResultErrorFromErr(tool+" failed", err)
}
