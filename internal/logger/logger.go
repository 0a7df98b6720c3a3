// Package logger provides structured logging setup for hexswarm.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hexswarm/hexswarm/internal/config"
)

// Options for async logging.
const (
	asyncBufferSize = 10000
	asyncWorkers    = 4
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stderr, since stdout carries the MCP stdio stream.
// Every record has a "service" attribute, plus request_id and task_id
// when the context carries them.
// The returned Closer must be called on shutdown to flush async logs.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBufferSize, asyncWorkers)
		handler = ah
		closer = ah
	}

	return slog.New(&contextHandler{inner: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
