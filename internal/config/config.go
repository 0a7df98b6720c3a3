// Package config provides hierarchical configuration loading for hexswarm.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/hexswarm/hexswarm/internal/domain/resource"
	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Config holds all runtime configuration for one hexswarm agent process.
type Config struct {
	Agent         Agent         `yaml:"agent"`
	Storage       Storage       `yaml:"storage"`
	Executor      Executor      `yaml:"executor"`
	Resources     Resources     `yaml:"resources"`
	Performance   Performance   `yaml:"performance"`
	Notifications Notifications `yaml:"notifications"`
	Server        Server        `yaml:"server"`
	NATS          NATS          `yaml:"nats"`
	Cache         Cache         `yaml:"cache"`
	Breaker       Breaker       `yaml:"breaker"`
	Logging       Logging       `yaml:"logging"`
	Otel          Otel          `yaml:"otel"`
	Auth          Auth          `yaml:"auth"`
}

// Agent identifies the agent this process serves.
type Agent struct {
	Name     string `yaml:"name"`     // Executor preset: "codex" | "gemini" | "hex"
	DID      string `yaml:"did"`      // Decentralized identifier reported by agent_info
	Version  string `yaml:"version"`  // Reported by agent_info
	Fallback string `yaml:"fallback"` // Coordinator that receives work no agent can take (default: "hex")
}

// Storage holds the task directory tree settings.
type Storage struct {
	TaskDir            string        `yaml:"task_dir"`
	LockAttempts       int           `yaml:"lock_attempts"`
	LockInitialBackoff time.Duration `yaml:"lock_initial_backoff"`
	LockMaxBackoff     time.Duration `yaml:"lock_max_backoff"`
}

// Executor configures the subprocess used to run tasks.
type Executor struct {
	CLI            string        `yaml:"cli"`     // Binary override; empty uses the preset for Agent.Name
	Args           []string      `yaml:"args"`    // Extra arguments placed before the prompt
	WorkDir        string        `yaml:"workdir"` // Working directory for the CLI
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"` // CLI processes allowed at once
	SecretEnv      []string      `yaml:"secret_env"`     // Variables forwarded to the CLI, e.g. OPENAI_API_KEY
	SecretsFile    string        `yaml:"secrets_file"`   // Optional KEY=VALUE file layered over SecretEnv
}

// Resources configures capacity accounting and routing.
type Resources struct {
	LedgerPath    string                     `yaml:"ledger_path"`
	ContextLimits map[string]int             `yaml:"context_limits"`
	Budgets       map[string]resource.Budget `yaml:"budgets"`
	Capabilities  []resource.Capability      `yaml:"capabilities"`
}

// Performance configures the historical outcome database.
type Performance struct {
	DBPath string `yaml:"db_path"` // Empty disables performance tracking
}

// Notifications configures the completion inbox.
type Notifications struct {
	Dir       string        `yaml:"dir"`
	Retention time.Duration `yaml:"retention"` // Processed entries older than this are pruned
}

// Server holds transport configuration.
type Server struct {
	MCPTransport string `yaml:"mcp_transport"` // "stdio" | "sse"
	MCPAddr      string `yaml:"mcp_addr"`      // Listen address for the SSE transport
	MCPToken     string `yaml:"mcp_token"`     // Bearer token required on the SSE transport
	HTTPPort     string `yaml:"http_port"`     // Empty disables the REST API
	CORSOrigin   string `yaml:"cors_origin"`

	SubmitRate     float64       `yaml:"submit_rate"`     // Sustained submissions per second per client IP
	SubmitBurst    int           `yaml:"submit_burst"`    // Submission burst per client IP
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"` // How long Idempotency-Key replays are kept
}

// NATS holds NATS JetStream configuration. An empty URL disables NATS.
type NATS struct {
	URL string `yaml:"url"`
}

// Cache configures the terminal-record read cache.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L1TTL       time.Duration `yaml:"l1_ttl"`
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Otel holds OpenTelemetry export configuration.
type Otel struct {
	Endpoint   string  `yaml:"endpoint"` // OTLP gRPC endpoint; empty disables export
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Auth configures the submission gate.
type Auth struct {
	AllowedDIDs []string `yaml:"allowed_dids"` // Empty admits every authenticated caller
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Agent: Agent{
			Name:     "hex",
			Version:  "0.1.0",
			Fallback: "hex",
		},
		Storage: Storage{
			TaskDir:            "~/.agent/tasks",
			LockAttempts:       10,
			LockInitialBackoff: 10 * time.Millisecond,
			LockMaxBackoff:     500 * time.Millisecond,
		},
		Executor: Executor{
			WorkDir:        ".",
			DefaultTimeout: 30 * time.Minute,
			MaxConcurrent:  4,
		},
		Resources: Resources{
			LedgerPath:    "~/.agent/resources.json",
			ContextLimits: copyLimits(resource.DefaultContextLimits),
			Budgets:       map[string]resource.Budget{},
			Capabilities:  resource.DefaultCapabilities(),
		},
		Performance: Performance{
			DBPath: "~/.agent/performance.db",
		},
		Notifications: Notifications{
			Dir:       "~/.agent/notifications",
			Retention: 7 * 24 * time.Hour,
		},
		Server: Server{
			MCPTransport:   "stdio",
			MCPAddr:        ":8090",
			CORSOrigin:     "http://localhost:3000",
			SubmitRate:     2,
			SubmitBurst:    10,
			IdempotencyTTL: 24 * time.Hour,
		},
		Cache: Cache{
			L1MaxSizeMB: 16,
			L1TTL:       10 * time.Minute,
			L2Bucket:    "HEXSWARM_TASKS",
			L2TTL:       time.Hour,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "hexswarm",
		},
		Otel: Otel{
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// ContextLimit returns the configured context window for agent, falling
// back to resource.DefaultContextLimit.
func (r *Resources) ContextLimit(agent string) int {
	if n, ok := r.ContextLimits[agent]; ok && n > 0 {
		return n
	}
	return resource.DefaultContextLimit
}

// CapabilitiesOf returns the task types the routing table declares for agent.
func (r *Resources) CapabilitiesOf(agent string) []task.Type {
	for _, c := range r.Capabilities {
		if c.Agent == agent {
			return c.Types
		}
	}
	return nil
}

func copyLimits(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
