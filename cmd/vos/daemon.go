package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/vos/internal/app"
	"github.com/steveyegge/vos/internal/control"
	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/storage"
)

// shutdownTimeout bounds how long the daemon waits for an in-flight task.
const shutdownTimeout = 30 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler and control socket until interrupted",
	Long: `Run vos as a long-lived process.

The daemon takes the data-directory lock, then runs:
  - the task scheduler (one tick per scheduler.tick_interval)
  - the control socket used by 'vos exec' and 'vos task'
  - a Prometheus /metrics endpoint on metrics.addr (empty disables it)
  - with the file backend, a watch that reloads the tree when another
    process rewrites it

It stops on SIGINT or SIGTERM, waiting for a running task to finish.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dir, err := resolveDataDir()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(dir, "json")
		if err != nil {
			return err
		}

		socket := filepath.Join(dir, control.SocketName)
		lockPath, err := storage.AcquireDaemonLock(dir, version, socket)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.ReleaseDaemonLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to release daemon lock: %v\n", err)
			}
		}()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeApp(a)

		return runDaemon(ctx, a, socket)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

// runDaemon runs every daemon service until ctx is done or one fails.
func runDaemon(ctx context.Context, a *app.App, socket string) error {
	g, gctx := errgroup.WithContext(ctx)

	srv, err := control.NewServer(socket, control.NewHandler(a))
	if err != nil {
		return err
	}
	if err := srv.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})

	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.Scheduler.Stop(shutdownCtx)
		})
	}

	if addr := a.Config.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		err := a.Watch(gctx)
		if errors.Is(err, app.ErrWatchUnsupported) {
			logging.Debug("external change watch unavailable",
				logging.String("backend", string(a.Config.Storage.Backend)))
			return nil
		}
		return err
	})

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s vos daemon started (version %s)\n", green("✓"), cyan(version))
	fmt.Printf("  Control socket: %s\n", socket)
	if a.Config.Scheduler.Enabled {
		fmt.Printf("  Scheduler: %d task(s), tick %v\n", len(a.Tasks()), a.Config.Scheduler.TickInterval)
	} else {
		fmt.Printf("  Scheduler: disabled\n")
	}
	if a.Config.Metrics.Addr != "" {
		fmt.Printf("  Metrics: http://%s/metrics\n", a.Config.Metrics.Addr)
	}
	fmt.Printf("  Press Ctrl+C to stop\n\n")
	logging.Info("daemon started",
		logging.String("socket", socket),
		logging.String("backend", string(a.Config.Storage.Backend)))

	err = g.Wait()
	fmt.Printf("%s vos daemon stopped\n", green("✓"))
	logging.Info("daemon stopped", logging.Err(err))
	return err
}
