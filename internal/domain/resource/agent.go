// Package resource defines per-agent capacity accounting used to gate and
// rank delegation candidates.
package resource

import "time"

// ExhaustedPercent is the context usage above which an agent stops
// accepting work.
const ExhaustedPercent = 90.0

// DefaultContextLimit applies to agents without a configured limit.
const DefaultContextLimit = 100_000

// DefaultContextLimits are conservative context window estimates per agent.
var DefaultContextLimits = map[string]int{
	"codex":  128_000,
	"gemini": 1_000_000,
	"hex":    200_000,
}

// Budget caps session usage for an agent. Zero means unlimited.
type Budget struct {
	Tokens  int     `json:"token_budget" yaml:"tokens"`
	CostUSD float64 `json:"cost_budget_usd" yaml:"cost_usd"`
}

// Agent tracks one agent's resource usage and limits.
type Agent struct {
	Name              string     `json:"name"`
	ContextLimit      int        `json:"context_limit"`
	ContextUsed       int        `json:"context_used"`
	TokensUsedSession int        `json:"tokens_used_session"`
	TokenBudget       int        `json:"token_budget"`
	CostBudgetUSD     float64    `json:"cost_budget_usd"`
	CostUsedUSD       float64    `json:"cost_used_usd"`
	TasksCompleted    int        `json:"tasks_completed"`
	TasksFailed       int        `json:"tasks_failed"`
	LastTaskAt        *time.Time `json:"last_task_at"`
	LastError         string     `json:"last_error,omitempty"`
}

// NewAgent returns a fresh ledger entry with the given limit and budget.
func NewAgent(name string, contextLimit int, budget Budget) Agent {
	return Agent{
		Name:          name,
		ContextLimit:  contextLimit,
		TokenBudget:   budget.Tokens,
		CostBudgetUSD: budget.CostUSD,
	}
}

// ContextRemaining is the unused portion of the context budget.
func (a *Agent) ContextRemaining() int {
	return max(0, a.ContextLimit-a.ContextUsed)
}

// PercentUsed is context usage as a percentage of the limit.
func (a *Agent) PercentUsed() float64 {
	if a.ContextLimit == 0 {
		return 0
	}
	return float64(a.ContextUsed) / float64(a.ContextLimit) * 100
}

// IsExhausted reports whether more than ExhaustedPercent of the context is used.
func (a *Agent) IsExhausted() bool {
	return a.PercentUsed() > ExhaustedPercent
}

// IsBudgetExhausted reports whether a non-zero token or cost budget was reached.
func (a *Agent) IsBudgetExhausted() bool {
	if a.TokenBudget > 0 && a.TokensUsedSession >= a.TokenBudget {
		return true
	}
	return a.CostBudgetUSD > 0 && a.CostUsedUSD >= a.CostBudgetUSD
}

// CanAcceptTask reports whether the agent may receive more work.
func (a *Agent) CanAcceptTask() bool {
	return !a.IsExhausted() && !a.IsBudgetExhausted()
}

// Record applies one finished task to the counters. Context usage is
// approximated by cumulative token consumption.
func (a *Agent) Record(tokens int, costUSD float64, success bool, errMsg string, at time.Time) {
	a.TokensUsedSession += tokens
	a.ContextUsed += tokens
	a.CostUsedUSD += costUSD
	a.LastTaskAt = &at
	if success {
		a.TasksCompleted++
		return
	}
	a.TasksFailed++
	a.LastError = errMsg
}

// ResetSession clears the context and session token usage, e.g. after the
// agent restarts. Cost usage and lifetime counters are kept.
func (a *Agent) ResetSession() {
	a.ContextUsed = 0
	a.TokensUsedSession = 0
}

// Snapshot is the agent state plus its derived predicates, as written to
// the ledger and reported to callers.
type Snapshot struct {
	Agent
	ContextRemaining   int     `json:"context_remaining"`
	ContextPercentUsed float64 `json:"context_percent_used"`
	IsExhausted        bool    `json:"is_exhausted"`
	IsBudgetExhausted  bool    `json:"is_budget_exhausted"`
	CanAcceptTask      bool    `json:"can_accept_task"`
}

// Snapshot returns a copy of a with derived fields filled in.
func (a *Agent) Snapshot() Snapshot {
	cp := *a
	if a.LastTaskAt != nil {
		t := *a.LastTaskAt
		cp.LastTaskAt = &t
	}
	return Snapshot{
		Agent:              cp,
		ContextRemaining:   a.ContextRemaining(),
		ContextPercentUsed: float64(int(a.PercentUsed()*10+0.5)) / 10,
		IsExhausted:        a.IsExhausted(),
		IsBudgetExhausted:  a.IsBudgetExhausted(),
		CanAcceptTask:      a.CanAcceptTask(),
	}
}

// Ledger is the persisted form of every tracked agent.
type Ledger struct {
	Agents    map[string]Snapshot `json:"agents"`
	UpdatedAt time.Time           `json:"updated_at"`
}
