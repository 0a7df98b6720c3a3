package cliagent

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/executor"
	"github.com/hexswarm/hexswarm/internal/procpool"
	"github.com/hexswarm/hexswarm/internal/secrets"
)

// withScript makes e run script under sh instead of the real CLI. The CLI
// arguments are passed through as "$@".
func withScript(t *testing.T, e *Executor, script string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	e.execCommand = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", append([]string{"-c", script, "sh"}, args...)...)
	}
}

func newTestExecutor(t *testing.T, preset string, script string) *Executor {
	t.Helper()
	e, err := New(Config{Preset: preset}, procpool.New(2), nil)
	if err != nil {
		t.Fatal(err)
	}
	withScript(t, e, script)
	return e
}

func record(format task.OutputFormat) task.Record {
	return task.Record{
		ID: "task_abc",
		Request: task.Request{
			Type:         task.TypeCode,
			Description:  "add a flag",
			OutputFormat: format,
			Priority:     task.PriorityNormal,
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	ctxText := "the repo uses cobra"
	got := BuildPrompt(task.Request{
		Description: "add a flag",
		Context:     &ctxText,
		Files:       []string{"main.go", "cmd/root.go"},
		Constraints: []string{"no new deps"},
	})
	want := "add a flag\n\nContext:\nthe repo uses cobra\n\nFiles:\nmain.go\ncmd/root.go\n\nConstraints:\nno new deps"
	if got != want {
		t.Fatalf("prompt =\n%s\nwant\n%s", got, want)
	}

	if got := BuildPrompt(task.Request{Description: "only"}); got != "only" {
		t.Fatalf("bare prompt = %q", got)
	}
}

func TestPresetArgs(t *testing.T) {
	codex := presets["codex"].args([]string{"--model", "o4"}, "P")
	if strings.Join(codex, " ") != "exec --model o4 P" {
		t.Errorf("codex args = %q", codex)
	}
	gemini := presets["gemini"].args(nil, "P")
	if strings.Join(gemini, " ") != "--prompt P --yolo" {
		t.Errorf("gemini args = %q", gemini)
	}
}

func TestParseTokens(t *testing.T) {
	tests := []struct {
		preset string
		output string
		want   int
		ok     bool
	}{
		{"codex", "thinking...\ntokens used\n5,264\n", 5264, true},
		{"codex", "Tokens Used\n  42", 42, true},
		{"codex", "no report", 0, false},
		{"gemini", "answer\ntokens: 1,234", 1234, true},
		{"gemini", "Token 7", 7, true},
		{"gemini", "nothing here", 0, false},
	}
	for _, tt := range tests {
		got, ok := presets[tt.preset].parseTokens(tt.output)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s parseTokens(%q) = %d, %v; want %d, %v", tt.preset, tt.output, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExecuteCodexSuccess(t *testing.T) {
	e := newTestExecutor(t, "codex", `printf 'patched\n'; printf 'tokens used\n5,264\n' >&2`)

	res, err := e.Execute(context.Background(), record(task.OutputText))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != task.StatusCompleted || res.TaskID != "task_abc" {
		t.Fatalf("result = %+v", res)
	}
	if string(res.Result) != `"patched"` {
		t.Errorf("payload = %s", res.Result)
	}
	if res.Tokens() != 5264 {
		t.Errorf("tokens = %d", res.Tokens())
	}
	if res.Summary != "Codex task completed." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestExecutePassesPrompt(t *testing.T) {
	e := newTestExecutor(t, "codex", `printf '%s|' "$@"`)
	e.cfg.Args = []string{"--full-auto"}

	res, err := e.Execute(context.Background(), record(task.OutputText))
	if err != nil {
		t.Fatal(err)
	}
	var got string
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatal(err)
	}
	if got != "exec|--full-auto|add a flag|" {
		t.Fatalf("argv = %q", got)
	}
}

func TestExecuteJSONOutput(t *testing.T) {
	e := newTestExecutor(t, "gemini", `printf '{"answer": 42}'`)

	res, err := e.Execute(context.Background(), record(task.OutputJSON))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]int
	if err := json.Unmarshal(res.Result, &doc); err != nil || doc["answer"] != 42 {
		t.Fatalf("payload = %s (%v)", res.Result, err)
	}
	if res.TokenUsage != nil {
		t.Errorf("tokens = %d, want unknown", *res.TokenUsage)
	}

	e = newTestExecutor(t, "gemini", `printf 'not json'`)
	res, err = e.Execute(context.Background(), record(task.OutputJSON))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Result) != `"not json"` {
		t.Fatalf("fallback payload = %s", res.Result)
	}
}

func TestExecuteFailure(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"stderr message", `echo 'quota exceeded' >&2; exit 3`, "codex failed: quota exceeded (exit 3)"},
		{"stdout fallback", `echo 'bad flag'; exit 2`, "codex failed: bad flag (exit 2)"},
		{"silent", `exit 1`, "codex failed: unknown error (exit 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, "codex", tt.script)
			_, err := e.Execute(context.Background(), record(task.OutputText))
			if err == nil || err.Error() != tt.want {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestExecuteKilledOnCancel(t *testing.T) {
	e := newTestExecutor(t, "codex", `exec sleep 10`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, record(task.OutputText))
	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process not killed promptly: %v", elapsed)
	}
}

func TestExecuteForwardsSecrets(t *testing.T) {
	vault, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"HEXSWARM_TEST_KEY": "k-123"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Config{Preset: "gemini"}, nil, vault)
	if err != nil {
		t.Fatal(err)
	}
	withScript(t, e, `printf '%s' "$HEXSWARM_TEST_KEY"`)

	res, err := e.Execute(context.Background(), record(task.OutputText))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Result) != `"k-123"` {
		t.Fatalf("payload = %s", res.Result)
	}
}

func TestNewUnknownPreset(t *testing.T) {
	if _, err := New(Config{Preset: "claude"}, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegister(t *testing.T) {
	Register(nil, nil)

	e, err := executor.New("gemini", map[string]string{"cli": "/opt/gemini", "args": "--model  pro"})
	if err != nil {
		t.Fatal(err)
	}
	ce := e.(*Executor)
	if ce.cfg.CLI != "/opt/gemini" || strings.Join(ce.cfg.Args, ",") != "--model,pro" {
		t.Fatalf("cfg = %+v", ce.cfg)
	}
	if ce.Name() != "gemini" || len(ce.Capabilities()) != 3 {
		t.Fatalf("name/capabilities = %s %v", ce.Name(), ce.Capabilities())
	}
}
