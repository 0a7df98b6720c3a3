package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources exposes read-only agent snapshots as MCP resources.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"hexswarm://agent",
			"Agent",
			mcplib.WithResourceDescription("Identity, capabilities and current load of this agent"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgentResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"hexswarm://resources",
			"Resource Ledger",
			mcplib.WithResourceDescription("Context and token usage for all known agents"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleLedgerResource,
	)
}

func (s *Server) handleAgentResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return jsonResource(req.Params.URI, map[string]any{
		"info":   s.tasks.AgentInfo(),
		"status": s.tasks.AgentStatus(),
	})
}

func (s *Server) handleLedgerResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return jsonResource(req.Params.URI, s.tasks.AgentResources())
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
