// Package config loads vos configuration from .vos/config.yaml with
// VOS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/vos/internal/storage"
)

// FileName is the config file inside the data directory.
const FileName = "config.yaml"

// Config is the full vos configuration.
type Config struct {
	Storage   storage.Config  `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Shell     ShellConfig     `yaml:"shell"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Objective ObjectiveConfig `yaml:"objective"`
	Packages  PackagesConfig  `yaml:"packages"`
}

// LoggingConfig configures the global zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`
	// Format is console or json. Empty picks console for interactive
	// commands and json for the daemon.
	Format string `yaml:"format"`
	// Output is stdout, stderr, or a file path. Default: stderr
	Output string `yaml:"output"`
}

// SchedulerConfig configures the task scheduler.
type SchedulerConfig struct {
	// TickInterval is how often due tasks are scanned. Default: 1s
	TickInterval time.Duration `yaml:"tick_interval"`
	// TasksPath is the VFS path of the persisted task list.
	// Default: /system/tasks.json
	TasksPath string `yaml:"tasks_path"`
	// SummaryLength truncates stored results. Default: 200
	SummaryLength int `yaml:"summary_length"`
	// Enabled controls whether `vos daemon` runs the scheduler loop.
	// Default: true
	Enabled bool `yaml:"enabled"`
}

// ShellConfig configures the shell and the interactive REPL.
type ShellConfig struct {
	// User owns /home/<user>. Default: user
	User string `yaml:"user"`
	// Prompt is the REPL prompt suffix. Default: "$ "
	Prompt string `yaml:"prompt"`
	// HistoryFile is the readline history file, relative to the data
	// directory. Empty disables history.
	HistoryFile string `yaml:"history_file"`
}

// MetricsConfig configures the daemon's Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// ObjectiveConfig configures model calls for agent-objective tasks.
// The API key is read from ANTHROPIC_API_KEY, never from the file.
type ObjectiveConfig struct {
	Model      string        `yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PackagesConfig configures the package side-channel.
type PackagesConfig struct {
	// RateLimit is registry lookups per second; 0 disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: *storage.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
		Scheduler: SchedulerConfig{
			TickInterval:  time.Second,
			TasksPath:     "/system/tasks.json",
			SummaryLength: 200,
			Enabled:       true,
		},
		Shell: ShellConfig{
			User:        "user",
			Prompt:      "$ ",
			HistoryFile: "history",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Objective: ObjectiveConfig{
			Model:      "claude-sonnet-4-5-20250929",
			MaxTokens:  4096,
			MaxRetries: 3,
			Timeout:    60 * time.Second,
		},
		Packages: PackagesConfig{
			RateLimit: 10,
			Burst:     5,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromDataDir loads dataDir/config.yaml and resolves relative paths
// against dataDir.
func LoadFromDataDir(dataDir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dataDir, FileName))
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(dataDir)
	return cfg, nil
}

// ResolvePaths makes the storage path and history file absolute.
func (c *Config) ResolvePaths(dataDir string) {
	if c.Storage.Backend == storage.BackendSQLite || c.Storage.Backend == storage.BackendFile {
		c.Storage.Path = storage.ResolveInDataDir(dataDir, c.Storage.Path)
	}
	if c.Shell.HistoryFile != "" {
		c.Shell.HistoryFile = storage.ResolveInDataDir(dataDir, c.Shell.HistoryFile)
	}
}

// ApplyEnv overrides fields from VOS_* environment variables.
//
// Environment variables:
//   - VOS_STORAGE_BACKEND, VOS_STORAGE_PATH, VOS_STORAGE_DSN
//   - VOS_S3_ENDPOINT, VOS_S3_BUCKET, VOS_S3_REGION, VOS_S3_PREFIX,
//     VOS_S3_ACCESS_KEY, VOS_S3_SECRET_KEY
//   - VOS_LOG_LEVEL, VOS_LOG_FORMAT, VOS_LOG_OUTPUT
//   - VOS_SCHEDULER_TICK, VOS_SCHEDULER_ENABLED, VOS_SUMMARY_LENGTH
//   - VOS_USER, VOS_PROMPT
//   - VOS_METRICS_ADDR
//   - VOS_OBJECTIVE_MODEL, VOS_OBJECTIVE_MAX_TOKENS, VOS_OBJECTIVE_MAX_RETRIES
//   - VOS_PACKAGES_RATE_LIMIT, VOS_PACKAGES_BURST
func (c *Config) ApplyEnv() error {
	var backend string
	if err := parseEnvString("VOS_STORAGE_BACKEND", &backend); err != nil {
		return err
	}
	if backend != "" {
		c.Storage.Backend = storage.Backend(backend)
	}

	strs := []struct {
		key  string
		dest *string
	}{
		{"VOS_STORAGE_PATH", &c.Storage.Path},
		{"VOS_STORAGE_DSN", &c.Storage.DSN},
		{"VOS_S3_ENDPOINT", &c.Storage.S3.Endpoint},
		{"VOS_S3_BUCKET", &c.Storage.S3.Bucket},
		{"VOS_S3_REGION", &c.Storage.S3.Region},
		{"VOS_S3_PREFIX", &c.Storage.S3.Prefix},
		{"VOS_S3_ACCESS_KEY", &c.Storage.S3.AccessKey},
		{"VOS_S3_SECRET_KEY", &c.Storage.S3.SecretKey},
		{"VOS_LOG_LEVEL", &c.Logging.Level},
		{"VOS_LOG_FORMAT", &c.Logging.Format},
		{"VOS_LOG_OUTPUT", &c.Logging.Output},
		{"VOS_USER", &c.Shell.User},
		{"VOS_PROMPT", &c.Shell.Prompt},
		{"VOS_METRICS_ADDR", &c.Metrics.Addr},
		{"VOS_OBJECTIVE_MODEL", &c.Objective.Model},
	}
	for _, s := range strs {
		if err := parseEnvString(s.key, s.dest); err != nil {
			return err
		}
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{"VOS_SUMMARY_LENGTH", &c.Scheduler.SummaryLength},
		{"VOS_OBJECTIVE_MAX_TOKENS", &c.Objective.MaxTokens},
		{"VOS_OBJECTIVE_MAX_RETRIES", &c.Objective.MaxRetries},
		{"VOS_PACKAGES_BURST", &c.Packages.Burst},
	}
	for _, i := range ints {
		if err := parseEnvInt(i.key, i.dest); err != nil {
			return err
		}
	}

	if err := parseEnvDuration("VOS_SCHEDULER_TICK", &c.Scheduler.TickInterval); err != nil {
		return err
	}
	if err := parseEnvBool("VOS_SCHEDULER_ENABLED", &c.Scheduler.Enabled); err != nil {
		return err
	}
	return parseEnvFloat("VOS_PACKAGES_RATE_LIMIT", &c.Packages.RateLimit)
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}

	if c.Scheduler.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("scheduler.tick_interval must be at least 10ms (got %s)", c.Scheduler.TickInterval)
	}
	if c.Scheduler.TasksPath == "" || c.Scheduler.TasksPath[0] != '/' {
		return fmt.Errorf("scheduler.tasks_path must be an absolute VFS path (got %q)", c.Scheduler.TasksPath)
	}
	if c.Scheduler.SummaryLength < 1 {
		return fmt.Errorf("scheduler.summary_length must be positive (got %d)", c.Scheduler.SummaryLength)
	}

	if c.Shell.User == "" {
		return fmt.Errorf("shell.user is required")
	}
	for _, r := range c.Shell.User {
		if r == '/' || r == ' ' {
			return fmt.Errorf("shell.user %q must not contain '/' or spaces", c.Shell.User)
		}
	}

	if c.Objective.MaxTokens < 1 {
		return fmt.Errorf("objective.max_tokens must be positive (got %d)", c.Objective.MaxTokens)
	}
	if c.Objective.MaxRetries < 0 || c.Objective.MaxRetries > 10 {
		return fmt.Errorf("objective.max_retries must be between 0 and 10 (got %d)", c.Objective.MaxRetries)
	}
	if c.Objective.Timeout < 0 {
		return fmt.Errorf("objective.timeout cannot be negative (got %s)", c.Objective.Timeout)
	}

	if c.Packages.RateLimit < 0 {
		return fmt.Errorf("packages.rate_limit cannot be negative (got %g)", c.Packages.RateLimit)
	}
	if c.Packages.RateLimit > 0 && c.Packages.Burst < 1 {
		return fmt.Errorf("packages.burst must be at least 1 when rate_limit is set (got %d)", c.Packages.Burst)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to dataDir/config.yaml
// unless a config already exists.
func WriteDefault(dataDir string) (string, error) {
	path := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}
	data, err := Default().Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
