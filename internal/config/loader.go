package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "hexswarm.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("HEXSWARM_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	if err := expandPaths(&cfg); err != nil {
		return nil, fmt.Errorf("config paths: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Agent.Name, "HEXSWARM_AGENT")
	setString(&cfg.Agent.DID, "HEXSWARM_AGENT_DID")
	setString(&cfg.Agent.Version, "HEXSWARM_AGENT_VERSION")
	setString(&cfg.Agent.Fallback, "HEXSWARM_FALLBACK_AGENT")

	// Storage
	setString(&cfg.Storage.TaskDir, "HEXSWARM_TASK_DIR")
	setInt(&cfg.Storage.LockAttempts, "HEXSWARM_LOCK_ATTEMPTS")
	setDuration(&cfg.Storage.LockInitialBackoff, "HEXSWARM_LOCK_INITIAL_BACKOFF")
	setDuration(&cfg.Storage.LockMaxBackoff, "HEXSWARM_LOCK_MAX_BACKOFF")

	// Executor
	setString(&cfg.Executor.CLI, "HEXSWARM_CLI")
	setStrings(&cfg.Executor.Args, "HEXSWARM_CLI_ARGS")
	setString(&cfg.Executor.WorkDir, "HEXSWARM_WORKDIR")
	setDuration(&cfg.Executor.DefaultTimeout, "HEXSWARM_TASK_TIMEOUT")
	setInt(&cfg.Executor.MaxConcurrent, "HEXSWARM_MAX_CONCURRENT")
	setStrings(&cfg.Executor.SecretEnv, "HEXSWARM_SECRET_ENV")
	setString(&cfg.Executor.SecretsFile, "HEXSWARM_SECRETS_FILE")

	// Resources, performance, notifications
	setString(&cfg.Resources.LedgerPath, "HEXSWARM_LEDGER_PATH")
	setString(&cfg.Performance.DBPath, "HEXSWARM_PERF_DB")
	setString(&cfg.Notifications.Dir, "HEXSWARM_NOTIFICATIONS_DIR")
	setDuration(&cfg.Notifications.Retention, "HEXSWARM_NOTIFICATIONS_RETENTION")

	// Transports
	setString(&cfg.Server.MCPTransport, "HEXSWARM_MCP_TRANSPORT")
	setString(&cfg.Server.MCPAddr, "HEXSWARM_MCP_ADDR")
	setString(&cfg.Server.MCPToken, "HEXSWARM_MCP_TOKEN")
	setString(&cfg.Server.HTTPPort, "HEXSWARM_HTTP_PORT")
	setString(&cfg.Server.CORSOrigin, "HEXSWARM_CORS_ORIGIN")
	setFloat64(&cfg.Server.SubmitRate, "HEXSWARM_SUBMIT_RATE")
	setInt(&cfg.Server.SubmitBurst, "HEXSWARM_SUBMIT_BURST")
	setDuration(&cfg.Server.IdempotencyTTL, "HEXSWARM_IDEMPOTENCY_TTL")
	setString(&cfg.NATS.URL, "NATS_URL")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "HEXSWARM_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "HEXSWARM_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "HEXSWARM_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "HEXSWARM_CACHE_L2_TTL")

	setInt(&cfg.Breaker.MaxFailures, "HEXSWARM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HEXSWARM_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "HEXSWARM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HEXSWARM_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HEXSWARM_LOG_ASYNC")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "HEXSWARM_OTEL_INSECURE")
	setFloat64(&cfg.Otel.SampleRate, "HEXSWARM_OTEL_SAMPLE_RATE")

	setStrings(&cfg.Auth.AllowedDIDs, "HEXSWARM_ALLOWED_DIDS")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Agent.Name == "" {
		return errors.New("agent.name is required")
	}
	if cfg.Agent.Fallback == "" {
		return errors.New("agent.fallback is required")
	}
	if cfg.Storage.TaskDir == "" {
		return errors.New("storage.task_dir is required")
	}
	if cfg.Storage.LockAttempts < 1 {
		return errors.New("storage.lock_attempts must be >= 1")
	}
	if cfg.Executor.DefaultTimeout <= 0 {
		return errors.New("executor.default_timeout must be > 0")
	}
	if cfg.Executor.MaxConcurrent < 1 {
		return errors.New("executor.max_concurrent must be >= 1")
	}
	if cfg.Resources.LedgerPath == "" {
		return errors.New("resources.ledger_path is required")
	}
	for _, c := range cfg.Resources.Capabilities {
		for _, t := range c.Types {
			if !t.Valid() {
				return fmt.Errorf("resources.capabilities: agent %q declares unknown task type %q", c.Agent, t)
			}
		}
	}
	switch cfg.Server.MCPTransport {
	case "stdio", "sse":
	default:
		return fmt.Errorf("server.mcp_transport must be stdio or sse, got %q", cfg.Server.MCPTransport)
	}
	if cfg.Server.SubmitRate <= 0 || cfg.Server.SubmitBurst < 1 {
		return errors.New("server.submit_rate must be > 0 and server.submit_burst >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Otel.SampleRate < 0 || cfg.Otel.SampleRate > 1 {
		return errors.New("otel.sample_rate must be within [0, 1]")
	}
	return nil
}

// expandPaths resolves a leading "~/" in every filesystem path.
func expandPaths(cfg *Config) error {
	for _, p := range []*string{
		&cfg.Storage.TaskDir,
		&cfg.Executor.WorkDir,
		&cfg.Executor.SecretsFile,
		&cfg.Resources.LedgerPath,
		&cfg.Performance.DBPath,
		&cfg.Notifications.Dir,
	} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// AgentCapabilities returns the task types the configured agent serves.
// The fallback coordinator accepts every type.
func (c *Config) AgentCapabilities() []task.Type {
	if c.Agent.Name == c.Agent.Fallback {
		return task.Types
	}
	return c.Resources.CapabilitiesOf(c.Agent.Name)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated value, dropping empty items.
func setStrings(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
