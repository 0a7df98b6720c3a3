package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/resource"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/ledgerstore"
)

// ResourceConfig holds the limits and routing table for the tracker.
type ResourceConfig struct {
	ContextLimits map[string]int
	Budgets       map[string]resource.Budget
	Capabilities  []resource.Capability
}

// UsageOutcome is one finished task as seen by the resource ledger.
type UsageOutcome struct {
	Agent   string
	Tokens  int
	CostUSD float64
	Success bool
	Error   string
}

// ResourceTracker keeps per-agent capacity counters and picks delegation
// targets. Every mutation rewrites the whole ledger.
type ResourceTracker struct {
	mu     sync.Mutex
	cfg    ResourceConfig
	store  ledgerstore.Store
	agents map[string]*resource.Agent
	now    func() time.Time
}

// NewResourceTracker loads the ledger from store. Configured limits and
// budgets replace the persisted ones; usage counters are kept.
func NewResourceTracker(ctx context.Context, store ledgerstore.Store, cfg ResourceConfig) (*ResourceTracker, error) {
	if cfg.Capabilities == nil {
		cfg.Capabilities = resource.DefaultCapabilities()
	}
	rt := &ResourceTracker{
		cfg:    cfg,
		store:  store,
		agents: make(map[string]*resource.Agent),
		now:    task.Now,
	}

	ledger, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resource ledger: %w", err)
	}
	for name, snap := range ledger.Agents {
		a := snap.Agent
		a.Name = name
		rt.applyLimits(&a)
		rt.agents[name] = &a
	}
	return rt, nil
}

func (rt *ResourceTracker) contextLimit(name string) int {
	if n, ok := rt.cfg.ContextLimits[name]; ok && n > 0 {
		return n
	}
	if n, ok := resource.DefaultContextLimits[name]; ok {
		return n
	}
	return resource.DefaultContextLimit
}

func (rt *ResourceTracker) applyLimits(a *resource.Agent) {
	a.ContextLimit = rt.contextLimit(a.Name)
	b := rt.cfg.Budgets[a.Name]
	a.TokenBudget = b.Tokens
	a.CostBudgetUSD = b.CostUSD
}

// agent returns the tracked entry for name, creating it. Caller holds mu.
func (rt *ResourceTracker) agent(name string) *resource.Agent {
	if a, ok := rt.agents[name]; ok {
		return a
	}
	a := resource.NewAgent(name, rt.contextLimit(name), rt.cfg.Budgets[name])
	rt.agents[name] = &a
	return &a
}

// peek returns the entry for name without tracking it. Caller holds mu.
func (rt *ResourceTracker) peek(name string) resource.Agent {
	if a, ok := rt.agents[name]; ok {
		return *a
	}
	return resource.NewAgent(name, rt.contextLimit(name), rt.cfg.Budgets[name])
}

// RecordTask applies a finished task to the agent's counters and persists
// the ledger. The in-memory counters are updated even if persisting fails.
func (rt *ResourceTracker) RecordTask(ctx context.Context, o UsageOutcome) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.agent(o.Agent).Record(o.Tokens, o.CostUSD, o.Success, o.Error, rt.now())
	return rt.saveLocked(ctx)
}

// ResetSession zeroes the session usage of agent, e.g. after it restarted
// with a fresh context window.
func (rt *ResourceTracker) ResetSession(ctx context.Context, agent string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.agent(agent).ResetSession()
	return rt.saveLocked(ctx)
}

func (rt *ResourceTracker) saveLocked(ctx context.Context) error {
	ledger := resource.Ledger{
		Agents:    make(map[string]resource.Snapshot, len(rt.agents)),
		UpdatedAt: rt.now(),
	}
	for name, a := range rt.agents {
		ledger.Agents[name] = a.Snapshot()
	}
	if err := rt.store.Save(ctx, ledger); err != nil {
		return fmt.Errorf("save resource ledger: %w", err)
	}
	return nil
}

// BestAgentFor picks the capable, non-excluded agent with the most context
// remaining among those that can accept work. Ties go to the agent listed
// first in the capability table. ok is false when nobody qualifies, in
// which case the caller routes to the fallback coordinator.
func (rt *ResourceTracker) BestAgentFor(t task.Type, exclude ...string) (name string, ok bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	best := -1
	for _, c := range rt.cfg.Capabilities {
		if !c.Supports(t) || slices.Contains(exclude, c.Agent) {
			continue
		}
		a := rt.peek(c.Agent)
		if !a.CanAcceptTask() {
			continue
		}
		if r := a.ContextRemaining(); r > best {
			best, name = r, c.Agent
		}
	}
	return name, best >= 0
}

// Agent returns the current state of one agent.
func (rt *ResourceTracker) Agent(name string) resource.Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	a := rt.peek(name)
	return a.Snapshot()
}

// Summary returns every tracked agent plus every agent in the routing table.
func (rt *ResourceTracker) Summary() map[string]resource.Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out := make(map[string]resource.Snapshot, len(rt.agents)+len(rt.cfg.Capabilities))
	for _, c := range rt.cfg.Capabilities {
		a := rt.peek(c.Agent)
		out[c.Agent] = a.Snapshot()
	}
	for name, a := range rt.agents {
		out[name] = a.Snapshot()
	}
	return out
}
