package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vos/internal/app"
	"github.com/steveyegge/vos/internal/config"
	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/storage"
)

var version = "0.1.0"

var (
	configPath string
	dataDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "vos",
	Short: "Virtual operating-system shell",
	Long: `vos runs a POSIX-like shell over a persisted in-memory filesystem, with
embedded version control, a package side-channel, and a task scheduler.

State lives in a .vos/ directory; create one with 'vos init'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ./.vos or $VOS_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveDataDir returns --data-dir if set, else the discovered .vos directory.
func resolveDataDir() (string, error) {
	if dataDir != "" {
		return filepath.Abs(dataDir)
	}
	return storage.DiscoverDataDir()
}

// loadConfig reads the config for dir. defaultFormat applies when the file
// leaves logging.format empty: console for interactive commands, json for
// the daemon.
func loadConfig(dir, defaultFormat string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err == nil {
			cfg.ResolvePaths(dir)
		}
	} else {
		cfg, err = config.LoadFromDataDir(dir)
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultFormat
	}
	return cfg, cfg.Validate()
}

// openApp discovers the data directory, loads config, and builds the app.
func openApp(ctx context.Context, defaultFormat string) (*app.App, string, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, "", err
	}
	cfg, err := loadConfig(dir, defaultFormat)
	if err != nil {
		return nil, "", err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	return a, dir, nil
}

// closeApp flushes logs and releases storage.
func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close storage: %v\n", err)
	}
	_ = logging.Sync()
}
