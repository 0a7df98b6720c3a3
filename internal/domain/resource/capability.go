package resource

import (
	"slices"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Capability declares which task types an agent accepts.
type Capability struct {
	Agent string      `yaml:"agent"`
	Types []task.Type `yaml:"types"`
}

// Supports reports whether the agent declared t.
func (c Capability) Supports(t task.Type) bool { return slices.Contains(c.Types, t) }

// DefaultCapabilities is the routing table. Order is significant: it breaks
// ties between equally loaded agents. The coordinator is deliberately
// absent; it is the fallback when no entry qualifies.
func DefaultCapabilities() []Capability {
	return []Capability{
		{Agent: "codex", Types: []task.Type{task.TypeCode, task.TypeAnalysis}},
		{Agent: "gemini", Types: []task.Type{task.TypeResearch, task.TypeAnalysis, task.TypeGeneral}},
	}
}
