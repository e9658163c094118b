// Package config loads tradeNERD configuration: YAML file with defaults,
// then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tradenerd/internal/backboard"
)

// Config holds all tradeNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Remote assistant configuration
	Backboard BackboardConfig `yaml:"backboard"`

	// Conversation orchestration settings
	Agent AgentConfig `yaml:"agent"`

	// Session snapshot storage
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackboardConfig configures the remote assistant client.
type BackboardConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// Timeout is the per-attempt request timeout.
	Timeout string `yaml:"timeout"`

	// MaxRetries bounds retries of transient failures per remote call.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay seeds the doubling backoff between attempts.
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

// AgentConfig configures the conversation state machine.
type AgentConfig struct {
	// MaxToolCallsPerCycle caps tool executions per resolution cycle;
	// excess calls receive placeholder outputs.
	MaxToolCallsPerCycle int `yaml:"max_tool_calls_per_cycle"`

	// MaxToolCycles bounds tool-resolution round trips per exchange.
	MaxToolCycles int `yaml:"max_tool_cycles"`

	// SQLMaxRows caps rows rendered by query_trade_data.
	SQLMaxRows int `yaml:"sql_max_rows"`

	// HistoryMaxItems bounds the per-session audit trail.
	HistoryMaxItems int `yaml:"history_max_items"`
}

// StoreConfig configures durable session snapshots.
type StoreConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tradeNERD",
		Version: "1.0.0",

		Backboard: BackboardConfig{
			BaseURL:        backboard.DefaultBaseURL,
			Provider:       "openai",
			Model:          "gpt-4o",
			Timeout:        "120s",
			MaxRetries:     5,
			RetryBaseDelay: "4s",
		},

		Agent: AgentConfig{
			MaxToolCallsPerCycle: 1,
			MaxToolCycles:        6,
			SQLMaxRows:           50,
			HistoryMaxItems:      500,
		},

		Store: StoreConfig{
			SnapshotDir: "data/sessions",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("BACKBOARD_API_KEY"); key != "" {
		c.Backboard.APIKey = key
	}
	if url := os.Getenv("BACKBOARD_BASE_URL"); url != "" {
		c.Backboard.BaseURL = url
	}
	if p := os.Getenv("COGNITRADE_LLM_PROVIDER"); p != "" {
		c.Backboard.Provider = p
	}
	if m := os.Getenv("COGNITRADE_LLM_MODEL"); m != "" {
		c.Backboard.Model = m
	}
	if dir := os.Getenv("COGNITRADE_SESSION_STORE_DIR"); dir != "" {
		c.Store.SnapshotDir = dir
	}
	if n := os.Getenv("TRADENERD_MAX_TOOL_CYCLES"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.Agent.MaxToolCycles = v
		}
	}
	if n := os.Getenv("TRADENERD_MAX_TOOL_CALLS_PER_CYCLE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.Agent.MaxToolCallsPerCycle = v
		}
	}
	if lvl := os.Getenv("TRADENERD_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// GetRequestTimeout returns the per-attempt request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backboard.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRetryBaseDelay returns the backoff seed as a duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.Backboard.RetryBaseDelay)
	if err != nil {
		return 4 * time.Second
	}
	return d
}
