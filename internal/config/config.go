// Package config loads and validates quorum configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all quorum configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration (decision service + LLM-backed workers)
	LLM LLMConfig `yaml:"llm"`

	// Orchestration loop settings
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Event stream settings
	Protocol ProtocolConfig `yaml:"protocol"`

	// Secondary pub/sub relay
	Relay RelayConfig `yaml:"relay"`

	// WebSocket server
	Server ServerConfig `yaml:"server"`

	// Sandboxed executors
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the external decision service and LLM-backed workers.
type LLMConfig struct {
	// Provider selects the backend. Only "genai" is implemented.
	Provider string `yaml:"provider"`

	// APIKey for the provider. Empty disables LLM paths; deterministic
	// workers still run.
	APIKey string `yaml:"api_key"`

	// Model name, e.g. "gemini-2.0-flash".
	Model string `yaml:"model"`

	// RequestTimeout bounds every completion call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OrchestratorConfig bounds the refinement loop.
type OrchestratorConfig struct {
	// MaxIterations caps plan->dispatch->evaluate cycles per query.
	MaxIterations int `yaml:"max_iterations"`

	// WorkerTimeout is the per-worker dispatch deadline.
	WorkerTimeout time.Duration `yaml:"worker_timeout"`

	// HistoryWindow is how many prior iterations the evaluator sees.
	HistoryWindow int `yaml:"history_window"`
}

// ProtocolConfig configures event delivery observability.
type ProtocolConfig struct {
	// AckTimeout is how long to wait for a client ack before logging
	// the miss. Never fatal.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// QueueSize is the outbound event queue capacity per session.
	QueueSize int `yaml:"queue_size"`
}

// RelayConfig configures the best-effort pub/sub mirror.
type RelayConfig struct {
	// RedisURL enables the Redis relay when non-empty,
	// e.g. "redis://127.0.0.1:6379/0".
	RedisURL string `yaml:"redis_url"`
}

// ServerConfig configures the WebSocket endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SandboxConfig configures the sandboxed executors.
type SandboxConfig struct {
	// DataDir holds the sqlite scratch database and downloads.
	DataDir string `yaml:"data_dir"`

	// ShellEnabled gates the shell executor. Off by default.
	ShellEnabled bool `yaml:"shell_enabled"`
}

// LoggingConfig mirrors the category logger settings.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns a configuration with sensible defaults.
func Default() Config {
	return Config{
		Name:    "quorum",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider:       "genai",
			Model:          "gemini-2.0-flash",
			RequestTimeout: 60 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: 10,
			WorkerTimeout: 45 * time.Second,
			HistoryWindow: 3,
		},
		Protocol: ProtocolConfig{
			AckTimeout: 10 * time.Second,
			QueueSize:  256,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8823",
		},
		Sandbox: SandboxConfig{
			DataDir: ".quorum/data",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config from path, falling back to defaults when the file is
// absent. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides applies QUORUM_* environment variables on top of the
// file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUORUM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("QUORUM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("QUORUM_REDIS_URL"); v != "" {
		c.Relay.RedisURL = v
	}
	if v := os.Getenv("QUORUM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("QUORUM_ACK_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Protocol.AckTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("QUORUM_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestrator.MaxIterations = n
		}
	}
}

// Validate checks invariants and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("orchestrator.max_iterations must be positive, got %d", c.Orchestrator.MaxIterations)
	}
	if c.Orchestrator.WorkerTimeout <= 0 {
		return fmt.Errorf("orchestrator.worker_timeout must be positive, got %v", c.Orchestrator.WorkerTimeout)
	}
	if c.Orchestrator.HistoryWindow <= 0 {
		c.Orchestrator.HistoryWindow = 3
	}
	if c.Protocol.AckTimeout <= 0 {
		c.Protocol.AckTimeout = 10 * time.Second
	}
	if c.Protocol.QueueSize <= 0 {
		c.Protocol.QueueSize = 256
	}
	if c.Sandbox.DataDir == "" {
		c.Sandbox.DataDir = ".quorum/data"
	}
	return nil
}
