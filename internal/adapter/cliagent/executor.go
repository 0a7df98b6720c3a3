// Package cliagent implements the executor port by running a
// text-generation CLI (codex, gemini) as a subprocess.
package cliagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/executor"
	"github.com/hexswarm/hexswarm/internal/procpool"
	"github.com/hexswarm/hexswarm/internal/secrets"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// was killed.
const waitDelay = 5 * time.Second

// Config selects a preset and overrides its defaults.
type Config struct {
	Preset  string
	CLI     string   // binary override
	Args    []string // extra arguments placed before the prompt
	WorkDir string
}

// Executor runs tasks through an agent CLI.
type Executor struct {
	preset      Preset
	cfg         Config
	pool        *procpool.Pool
	vault       *secrets.Vault
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

var _ executor.Executor = (*Executor)(nil)

// New creates an executor for cfg.Preset. pool and vault may be nil.
func New(cfg Config, pool *procpool.Pool, vault *secrets.Vault) (*Executor, error) {
	p, ok := presets[cfg.Preset]
	if !ok {
		return nil, fmt.Errorf("cliagent: unknown preset %q", cfg.Preset)
	}
	if cfg.CLI == "" {
		cfg.CLI = p.Binary
	}
	return &Executor{
		preset:      p,
		cfg:         cfg,
		pool:        pool,
		vault:       vault,
		execCommand: exec.CommandContext,
	}, nil
}

// Register makes every preset available through executor.New. Recognised
// config keys: "cli", "args" (whitespace separated) and "workdir".
func Register(pool *procpool.Pool, vault *secrets.Vault) {
	for _, name := range Presets() {
		executor.Register(name, func(cfg map[string]string) (executor.Executor, error) {
			return New(Config{
				Preset:  name,
				CLI:     cfg["cli"],
				Args:    strings.Fields(cfg["args"]),
				WorkDir: cfg["workdir"],
			}, pool, vault)
		})
	}
}

// Name returns the preset name.
func (e *Executor) Name() string { return e.preset.Name }

// Capabilities returns the task types the preset accepts.
func (e *Executor) Capabilities() []task.Type { return e.preset.Capabilities }

// Execute runs the CLI with the task prompt. The process is killed when ctx
// ends. A non-zero exit is an error carrying the CLI's own message.
func (e *Executor) Execute(ctx context.Context, rec task.Record) (*task.Result, error) {
	prompt := BuildPrompt(rec.Request)

	var stdout, stderr bytes.Buffer
	cmd := e.execCommand(ctx, e.cfg.CLI, e.preset.args(e.cfg.Args, prompt)...)
	cmd.Dir = e.cfg.WorkDir
	cmd.Env = append(os.Environ(), e.vault.Environ()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := e.pool.Run(ctx, cmd.Run)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", e.preset.Name, context.Cause(ctx))
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := firstNonEmpty(stderr.String(), stdout.String(), "unknown error")
			return nil, fmt.Errorf("%s failed: %s (exit %d)", e.preset.Name, msg, exitErr.ExitCode())
		}
		return nil, fmt.Errorf("%s: run %s: %w", e.preset.Name, e.cfg.CLI, runErr)
	}

	out := stdout.String()
	tokenSource := out
	if e.preset.tokensStream == streamStderr {
		tokenSource = stderr.String()
	}

	res := &task.Result{
		TaskID:          rec.ID,
		Status:          task.StatusCompleted,
		Result:          payload(strings.TrimSpace(out), rec.Request.OutputFormat),
		FilesCreated:    []string{},
		Summary:         e.preset.Summary,
		DurationSeconds: elapsed.Seconds(),
	}
	if n, ok := e.preset.parseTokens(tokenSource); ok {
		res.TokenUsage = &n
	}

	slog.DebugContext(ctx, "cli finished", "agent", e.preset.Name, "duration", elapsed, "tokens", res.Tokens())
	return res, nil
}

// payload encodes CLI output as the result document. With json output the
// text is used verbatim when it is valid JSON; anything else becomes a
// JSON string.
func payload(out string, format task.OutputFormat) json.RawMessage {
	if format == task.OutputJSON && json.Valid([]byte(out)) {
		return json.RawMessage(out)
	}
	data, _ := json.Marshal(out)
	return data
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}
