package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vos/internal/storage"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: memory
logging:
  level: debug
  format: json
scheduler:
  tick_interval: 250ms
  enabled: false
shell:
  user: ada
objective:
  max_retries: 5
  timeout: 2m
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, storage.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "ada", cfg.Shell.User)
	assert.Equal(t, 5, cfg.Objective.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Objective.Timeout)

	// Untouched sections keep their defaults
	assert.Equal(t, "/system/tasks.json", cfg.Scheduler.TasksPath)
	assert.Equal(t, 4096, cfg.Objective.MaxTokens)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("storage: [not, a, map]\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "storage overrides",
			envVars: map[string]string{
				"VOS_STORAGE_BACKEND": "s3",
				"VOS_S3_BUCKET":       "trees",
				"VOS_S3_PREFIX":       "vos/",
				"VOS_S3_ENDPOINT":     "http://localhost:9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, storage.BackendS3, cfg.Storage.Backend)
				assert.Equal(t, "trees", cfg.Storage.S3.Bucket)
				assert.Equal(t, "vos/", cfg.Storage.S3.Prefix)
				assert.Equal(t, "http://localhost:9000", cfg.Storage.S3.Endpoint)
			},
		},
		{
			name: "scheduler and packages",
			envVars: map[string]string{
				"VOS_SCHEDULER_TICK":      "50ms",
				"VOS_SCHEDULER_ENABLED":   "false",
				"VOS_SUMMARY_LENGTH":      "80",
				"VOS_PACKAGES_RATE_LIMIT": "2.5",
				"VOS_PACKAGES_BURST":      "1",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.TickInterval)
				assert.False(t, cfg.Scheduler.Enabled)
				assert.Equal(t, 80, cfg.Scheduler.SummaryLength)
				assert.Equal(t, 2.5, cfg.Packages.RateLimit)
				assert.Equal(t, 1, cfg.Packages.Burst)
			},
		},
		{
			name:    "invalid int",
			envVars: map[string]string{"VOS_OBJECTIVE_MAX_TOKENS": "lots"},
			wantErr: true,
		},
		{
			name:    "invalid bool",
			envVars: map[string]string{"VOS_SCHEDULER_ENABLED": "maybe"},
			wantErr: true,
		},
		{
			name:    "invalid duration",
			envVars: map[string]string{"VOS_SCHEDULER_TICK": "5"},
			wantErr: true,
		},
		{
			name:    "invalid float",
			envVars: map[string]string{"VOS_PACKAGES_RATE_LIMIT": "fast"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := Default()
			err := cfg.ApplyEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "floppy" }, "unknown storage backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = storage.BackendPostgres }, "storage.dsn"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"tick too small", func(c *Config) { c.Scheduler.TickInterval = time.Millisecond }, "tick_interval"},
		{"relative tasks path", func(c *Config) { c.Scheduler.TasksPath = "tasks.json" }, "tasks_path"},
		{"zero summary", func(c *Config) { c.Scheduler.SummaryLength = 0 }, "summary_length"},
		{"empty user", func(c *Config) { c.Shell.User = "" }, "shell.user"},
		{"user with slash", func(c *Config) { c.Shell.User = "a/b" }, "shell.user"},
		{"zero max tokens", func(c *Config) { c.Objective.MaxTokens = 0 }, "max_tokens"},
		{"too many retries", func(c *Config) { c.Objective.MaxRetries = 11 }, "max_retries"},
		{"negative rate", func(c *Config) { c.Packages.RateLimit = -1 }, "rate_limit"},
		{"rate without burst", func(c *Config) { c.Packages.Burst = 0 }, "burst"},
		{"unthrottled without burst", func(c *Config) { c.Packages.RateLimit = 0; c.Packages.Burst = 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromDataDirResolvesPaths(t *testing.T) {
	project := t.TempDir()
	dataDir := filepath.Join(project, storage.DataDirName)
	require.NoError(t, os.Mkdir(dataDir, 0755))

	cfg, err := LoadFromDataDir(dataDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "vos.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(dataDir, "history"), cfg.Shell.HistoryFile)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteDefault(dir)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = WriteDefault(dir)
	assert.Error(t, err)
}
