// Package mcp exposes the orchestrator as a Model Context Protocol server.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/service"
)

// Transport names.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Orchestrator is the part of service.Orchestrator the tools call.
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

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name      string
	Version   string
	Transport string // "stdio" | "sse"
	Addr      string // SSE listen address
	Token     string // Bearer token required on the SSE transport; empty disables the check
}

// Server serves the agent tools over stdio or SSE.
type Server struct {
	cfg       ServerConfig
	tasks     Orchestrator
	mcpServer *mcpserver.MCPServer
}

// NewServer registers the tools and resources for tasks.
func NewServer(cfg ServerConfig, tasks Orchestrator) *Server {
	s := &Server{
		cfg:   cfg,
		tasks: tasks,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Serve runs the configured transport until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	switch s.cfg.Transport {
	case TransportSSE:
		return s.serveSSE(ctx)
	case TransportStdio, "":
		return s.serveStdio(ctx, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unknown mcp transport %q", s.cfg.Transport)
	}
}

func (s *Server) serveStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.InfoContext(ctx, "mcp server listening", "transport", TransportStdio)
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("mcp stdio: %w", err)
}

func (s *Server) serveSSE(ctx context.Context) error {
	sse := mcpserver.NewSSEServer(s.mcpServer,
		mcpserver.WithBaseURL("http://"+s.cfg.Addr),
		mcpserver.WithStaticBasePath("/mcp"),
	)
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.Token, sse),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "mcp server listening", "transport", TransportSSE, "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcp sse: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		slog.Warn("mcp sse sessions shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp sse shutdown: %w", err)
	}
	return nil
}
