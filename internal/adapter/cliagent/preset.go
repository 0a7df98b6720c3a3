package cliagent

import (
	"regexp"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// stream names which output of the CLI carries the token report.
type stream int

const (
	streamStdout stream = iota
	streamStderr
)

// Preset describes how to drive one agent CLI non-interactively.
type Preset struct {
	Name   string
	Binary string
	// Leading arguments, then any configured extra args, then PromptFlag
	// (if set) and the prompt, then Trailing.
	Leading      []string
	PromptFlag   string
	Trailing     []string
	Capabilities []task.Type
	Summary      string

	tokens       *regexp.Regexp
	tokensStream stream
}

var (
	// codex prints "tokens used\n5,264" on stderr.
	codexTokens = regexp.MustCompile(`(?i)tokens used\s*\n\s*([\d,]+)`)
	// gemini prints "tokens: 1234" on stdout.
	geminiTokens = regexp.MustCompile(`(?i)tokens?[:\s]+([\d,]+)`)
)

var presets = map[string]Preset{
	"codex": {
		Name:         "codex",
		Binary:       "codex",
		Leading:      []string{"exec"},
		Capabilities: []task.Type{task.TypeCode, task.TypeAnalysis},
		Summary:      "Codex task completed.",
		tokens:       codexTokens,
		tokensStream: streamStderr,
	},
	"gemini": {
		Name:         "gemini",
		Binary:       "gemini",
		PromptFlag:   "--prompt",
		Trailing:     []string{"--yolo"},
		Capabilities: []task.Type{task.TypeResearch, task.TypeAnalysis, task.TypeGeneral},
		Summary:      "Gemini task completed.",
		tokens:       geminiTokens,
		tokensStream: streamStdout,
	},
}

// Presets returns the names of the built-in CLI presets.
func Presets() []string { return []string{"codex", "gemini"} }

// args builds the full argument list for prompt.
func (p Preset) args(extra []string, prompt string) []string {
	out := make([]string, 0, len(p.Leading)+len(extra)+len(p.Trailing)+2)
	out = append(out, p.Leading...)
	out = append(out, extra...)
	if p.PromptFlag != "" {
		out = append(out, p.PromptFlag)
	}
	out = append(out, prompt)
	return append(out, p.Trailing...)
}
