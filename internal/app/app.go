// Package app constructs the vos services once and hands them to the
// front-ends: the REPL, one-shot exec, and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/config"
	"github.com/steveyegge/vos/internal/events"
	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/objective"
	"github.com/steveyegge/vos/internal/pkgmgr"
	"github.com/steveyegge/vos/internal/scheduler"
	"github.com/steveyegge/vos/internal/shell"
	"github.com/steveyegge/vos/internal/storage"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vcs"
	"github.com/steveyegge/vos/internal/vfs"
)

// EventBufferSize is the per-subscriber channel size of the event bus.
const EventBufferSize = 256

// App holds every service of one vos instance.
type App struct {
	Config     *config.Config
	Store      storage.Store
	Bus        *events.Bus
	FS         *vfs.FS
	Packages   *pkgmgr.Manager
	VCS        *vcs.Bridge
	Shell      *shell.Shell
	Objectives *objective.Runner
	Scheduler  *scheduler.Scheduler

	log *zap.Logger
}

// Option adjusts construction, mostly for tests.
type Option func(*options)

type options struct {
	store    storage.Store
	registry pkgmgr.Registry
	skipLog  bool
}

// WithStore uses store instead of opening the configured backend.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithRegistry replaces the built-in package catalog.
func WithRegistry(r pkgmgr.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithoutLoggingInit leaves the global logger untouched.
func WithoutLoggingInit() Option {
	return func(o *options) { o.skipLog = true }
}

// New builds the service graph: storage, event bus, filesystem, package
// manager, VCS bridge, shell, objective runner, then the scheduler with its
// persisted tasks loaded.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{registry: pkgmgr.DefaultRegistry()}
	for _, opt := range opts {
		opt(&o)
	}

	if !o.skipLog {
		if err := logging.Init(logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			OutputPath: cfg.Logging.Output,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
	}

	a := &App{
		Config: cfg,
		Bus:    events.NewBus(EventBufferSize),
		log:    logging.Named("app"),
	}

	a.Store = o.store
	if a.Store == nil {
		store, err := storage.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.Store = store
	}

	fs, err := vfs.Open(ctx,
		vfs.WithStore(a.Store, vfs.DefaultKey),
		vfs.WithNotifier(a.Bus))
	if err != nil {
		a.Store.Close()
		return nil, fmt.Errorf("failed to load filesystem: %w", err)
	}
	a.FS = fs

	if err := a.seed(ctx); err != nil {
		a.Store.Close()
		return nil, err
	}

	a.Packages = pkgmgr.New(fs, o.registry, pkgmgr.Config{
		RateLimit: cfg.Packages.RateLimit,
		Burst:     cfg.Packages.Burst,
	})
	a.VCS = vcs.NewBridge(fs)
	a.Shell = shell.New(fs,
		shell.WithUser(cfg.Shell.User),
		shell.WithVCS(a.VCS),
		shell.WithPackages(a.Packages))

	retry := objective.DefaultRetryConfig()
	retry.MaxRetries = cfg.Objective.MaxRetries
	if cfg.Objective.Timeout > 0 {
		retry.Timeout = cfg.Objective.Timeout
	}
	a.Objectives = objective.New(fs, a.Shell, objective.Config{
		Model:     cfg.Objective.Model,
		MaxTokens: int64(cfg.Objective.MaxTokens),
		User:      cfg.Shell.User,
		Retry:     retry,
	})

	a.Scheduler = scheduler.New(fs, a.Shell, scheduler.Config{
		TickInterval:  cfg.Scheduler.TickInterval,
		TasksPath:     cfg.Scheduler.TasksPath,
		SummaryLength: cfg.Scheduler.SummaryLength,
	},
		scheduler.WithObjectives(a.Objectives),
		scheduler.WithNotifier(a.Bus))
	if err := a.Scheduler.Load(ctx); err != nil {
		a.Store.Close()
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	a.Shell.SetTasks(a.Scheduler)
	a.Shell.SetObjectives(a.Objectives)

	metrics.SetVFSTreeSize(fs.NodeCount())
	a.log.Debug("vos initialized",
		zap.String("backend", string(cfg.Storage.Backend)),
		zap.Int("nodes", fs.NodeCount()),
		zap.Int("tasks", len(a.Scheduler.List())))
	return a, nil
}

// seed creates the standard directories. Existing ones are left alone.
func (a *App) seed(ctx context.Context) error {
	dirs := []string{
		"/home/" + a.Config.Shell.User,
		"/workspace",
		"/tmp",
		vfs.Dir(a.Config.Scheduler.TasksPath),
	}
	for _, d := range dirs {
		if a.FS.Exists(d) {
			continue
		}
		if err := a.FS.Mkdir(ctx, d); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}

// Exec runs line through the shell. An empty cwd uses the shell's own
// working directory, so cd persists; otherwise a forked shell runs at cwd.
func (a *App) Exec(ctx context.Context, cwd, line string) types.ShellResult {
	if cwd == "" {
		return a.Shell.Execute(ctx, line)
	}
	return a.Shell.Exec(ctx, cwd, line)
}

// Tasks returns the scheduled tasks.
func (a *App) Tasks() []types.ScheduledTask {
	return a.Scheduler.List()
}

// SchedulerRunning reports whether the scheduler loop is active.
func (a *App) SchedulerRunning() bool {
	return a.Scheduler.IsRunning()
}

// Revision returns the filesystem revision counter.
func (a *App) Revision() uint64 {
	return a.FS.Revision()
}

// Reload re-reads the filesystem from storage and then the task list from
// the filesystem.
func (a *App) Reload(ctx context.Context) error {
	if err := a.FS.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload filesystem: %w", err)
	}
	if err := a.Scheduler.Load(ctx); err != nil {
		return fmt.Errorf("failed to reload tasks: %w", err)
	}
	metrics.SetVFSTreeSize(a.FS.NodeCount())
	a.log.Info("state reloaded from storage", zap.Uint64("revision", a.FS.Revision()))
	return nil
}

// ErrWatchUnsupported is returned by Watch for backends that cannot report
// external writes.
var ErrWatchUnsupported = errors.New("storage backend does not support change notifications")

// Watch reloads state whenever another process replaces the persisted
// tree. It blocks until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	w, ok := a.Store.(storage.Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Watch(ctx, vfs.DefaultKey, func() {
		if err := a.Reload(ctx); err != nil {
			a.log.Warn("reload after external change failed", zap.Error(err))
		}
	})
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
