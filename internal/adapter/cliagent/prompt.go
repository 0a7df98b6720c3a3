package cliagent

import (
	"strconv"
	"strings"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// BuildPrompt renders a request as the single prompt string passed to the
// CLI: the description, then Context, Files and Constraints sections when
// present, separated by blank lines.
func BuildPrompt(req task.Request) string {
	parts := []string{req.Description}
	if req.Context != nil && *req.Context != "" {
		parts = append(parts, "Context:\n"+*req.Context)
	}
	if len(req.Files) > 0 {
		parts = append(parts, "Files:\n"+strings.Join(req.Files, "\n"))
	}
	if len(req.Constraints) > 0 {
		parts = append(parts, "Constraints:\n"+strings.Join(req.Constraints, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// parseTokens returns the first token count matched in output.
func (p Preset) parseTokens(output string) (int, bool) {
	if p.tokens == nil {
		return 0, false
	}
	m := p.tokens.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}
