// Package config handles conductor configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration structure for conductor.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Engine settings
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Runtimes maps runtime identifiers to agent CLI settings.
	Runtimes map[string]RuntimeConfig `yaml:"runtimes" mapstructure:"runtimes"`
}

// GlobalConfig contains global conductor settings.
type GlobalConfig struct {
	// DataDir is where conductor stores its data (default: ~/.local/share/conductor).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/conductor).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to log lines.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// EngineConfig contains workflow engine defaults.
type EngineConfig struct {
	// MaxRetries is the default per-step retry budget.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// ProcessTimeoutSeconds is the wall-clock limit for one agent process.
	ProcessTimeoutSeconds int `yaml:"process_timeout_seconds" mapstructure:"process_timeout_seconds"`

	// NoOutputTimeoutSeconds is how long to wait for the first output line.
	NoOutputTimeoutSeconds int `yaml:"no_output_timeout_seconds" mapstructure:"no_output_timeout_seconds"`

	// LogBatchLines is how many output lines to buffer before a log write.
	LogBatchLines int `yaml:"log_batch_lines" mapstructure:"log_batch_lines"`
}

// RuntimeConfig describes how to invoke one agent CLI runtime.
type RuntimeConfig struct {
	// Binary is the default executable name or absolute path.
	Binary string `yaml:"binary" mapstructure:"binary"`

	// OverrideEnv names the environment variable that overrides Binary.
	OverrideEnv string `yaml:"override_env" mapstructure:"override_env"`

	// PrefixArgs are fixed arguments placed before everything else.
	// A {workspace} placeholder is substituted with the run workspace.
	PrefixArgs []string `yaml:"prefix_args" mapstructure:"prefix_args"`

	// PromptFlag, when set, is the flag the prompt must immediately follow.
	// When empty the prompt is appended last.
	PromptFlag string `yaml:"prompt_flag" mapstructure:"prompt_flag"`

	// FlagDenylist lists option flags this runtime does not support.
	FlagDenylist []string `yaml:"flag_denylist" mapstructure:"flag_denylist"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	dataDir := filepath.Join(homeDir, ".local", "share", "conductor")
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		dataDir = filepath.Join(xdgData, "conductor")
	}

	configDir := filepath.Join(homeDir, ".config", "conductor")
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		configDir = filepath.Join(xdgConfig, "conductor")
	}

	return &Config{
		Global: GlobalConfig{
			DataDir:   dataDir,
			ConfigDir: configDir,
		},
		Database: DatabaseConfig{
			Path:           filepath.Join(dataDir, "conductor.db"),
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Engine: EngineConfig{
			MaxRetries:             3,
			ProcessTimeoutSeconds:  1800,
			NoOutputTimeoutSeconds: 120,
			LogBatchLines:          10,
		},
		Runtimes: DefaultRuntimes(),
	}
}

// DefaultRuntimes returns the built-in runtime registry.
func DefaultRuntimes() map[string]RuntimeConfig {
	return map[string]RuntimeConfig{
		"claude": {
			Binary:      "claude",
			OverrideEnv: "CONDUCTOR_CLAUDE_BIN",
			PrefixArgs: []string{
				"--output-format", "stream-json",
				"--verbose",
				"--dangerously-skip-permissions",
				"--add-dir", "{workspace}",
			},
			PromptFlag: "-p",
		},
		"codex": {
			Binary:      "codex",
			OverrideEnv: "CONDUCTOR_CODEX_BIN",
			PrefixArgs: []string{
				"exec",
				"--json",
				"--sandbox", "workspace-write",
				"--cd", "{workspace}",
			},
			FlagDenylist: []string{"--max-turns"},
		},
		"opencode": {
			Binary:      "opencode",
			OverrideEnv: "CONDUCTOR_OPENCODE_BIN",
			PrefixArgs: []string{
				"run",
				"--print-logs",
			},
			FlagDenylist: []string{"--max-turns", "--effort"},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be >= 1")
	}
	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine.max_retries must be >= 1")
	}
	if c.Engine.LogBatchLines < 1 {
		return fmt.Errorf("engine.log_batch_lines must be >= 1")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not valid", c.Logging.Level)
	}

	for name, rt := range c.Runtimes {
		if rt.Binary == "" {
			return fmt.Errorf("runtimes.%s.binary is required", name)
		}
	}

	return nil
}

// EnsureDirectories creates the data and config directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir, filepath.Dir(c.Database.Path)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
