// Package config provides the sandbox's on-disk configuration: the
// resource knobs spec section 6 names plus logging. It follows the
// teacher's DefaultConfig/Load/Save/applyEnvOverrides/Validate idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level sandbox configuration.
type Config struct {
	TimeoutMs        int64         `yaml:"timeout_ms"`
	MemoryLimitBytes int64         `yaml:"memory_limit_bytes"`
	MaxStackBytes    int64         `yaml:"max_stack_bytes"`
	Logging          LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the configuration spec section 4.2/6 names as
// defaults: 300ms deadline, 16MiB heap, 512KiB stack.
func DefaultConfig() *Config {
	return &Config{
		TimeoutMs:        300,
		MemoryLimitBytes: 16 * 1024 * 1024,
		MaxStackBytes:    512 * 1024,
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// Load reads configuration from path, falling back to DefaultConfig when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies SANDBOX_* environment variables over the
// loaded/default config, mirroring the teacher's env-override precedence
// idiom (env wins over file, file wins over default).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SANDBOX_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.TimeoutMs = n
		}
	}
	if v := os.Getenv("SANDBOX_MEMORY_LIMIT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MemoryLimitBytes = n
		}
	}
	if v := os.Getenv("SANDBOX_MAX_STACK_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxStackBytes = n
		}
	}
	if v := os.Getenv("SANDBOX_DEBUG_MODE"); v != "" {
		c.Logging.DebugMode = v == "true" || v == "1"
	}
}

// Validate rejects configurations with knobs spec section 4.2 would never
// accept (non-positive caps; an Infinity encoding that doesn't match
// sandbox.Infinity).
func (c *Config) Validate() error {
	if c.TimeoutMs != -1 && c.TimeoutMs <= 0 {
		return fmt.Errorf("config: timeout_ms must be positive or -1 (infinite), got %d", c.TimeoutMs)
	}
	if c.MemoryLimitBytes <= 0 {
		return fmt.Errorf("config: memory_limit_bytes must be positive, got %d", c.MemoryLimitBytes)
	}
	if c.MaxStackBytes <= 0 {
		return fmt.Errorf("config: max_stack_bytes must be positive, got %d", c.MaxStackBytes)
	}
	return nil
}

// GetTimeout returns the configured timeout as a time.Duration, or 0 when
// infinite.
func (c *Config) GetTimeout() time.Duration {
	if c.TimeoutMs == -1 {
		return 0
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
