// Package shell interprets command lines against the virtual filesystem.
// Every built-in reports through types.ShellResult; internal errors never
// escape Execute.
package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/pkgmgr"
	"github.com/steveyegge/vos/internal/script"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vcs"
	"github.com/steveyegge/vos/internal/vfs"
)

// DefaultUser owns the home directory when none is configured.
const DefaultUser = "user"

// Objectives runs objectives for `npx agent run`.
type Objectives interface {
	ExecuteObjective(ctx context.Context, objective string) (string, error)
}

// TaskManager manages scheduled tasks for `npx agent`.
type TaskManager interface {
	Add(ctx context.Context, task types.ScheduledTask) (types.ScheduledTask, error)
	List() []types.ScheduledTask
	Delete(ctx context.Context, id string) error
}

// Shell holds the working directory and the services built-ins call.
type Shell struct {
	fs         *vfs.FS
	vcs        *vcs.Bridge
	pkgs       *pkgmgr.Manager
	scripts    *script.Runtime
	objectives Objectives
	tasks      TaskManager
	now        func() time.Time
	log        *zap.Logger

	mu  sync.Mutex
	cwd string
	env map[string]string
}

// Option configures a Shell.
type Option func(*Shell)

// WithVCS enables the git built-in.
func WithVCS(b *vcs.Bridge) Option {
	return func(s *Shell) { s.vcs = b }
}

// WithPackages enables apm and package resolution for scripts.
func WithPackages(m *pkgmgr.Manager) Option {
	return func(s *Shell) { s.pkgs = m }
}

// WithObjectives enables `npx agent run`.
func WithObjectives(o Objectives) Option {
	return func(s *Shell) { s.objectives = o }
}

// WithTasks enables `npx agent schedule|tasks|cancel`.
func WithTasks(t TaskManager) Option {
	return func(s *Shell) { s.tasks = t }
}

// WithUser sets USER and HOME=/home/<user>.
func WithUser(user string) Option {
	return func(s *Shell) {
		if user == "" {
			return
		}
		s.env["USER"] = user
		s.env["HOME"] = "/home/" + user
	}
}

// WithEnv overrides individual environment variables.
func WithEnv(env map[string]string) Option {
	return func(s *Shell) {
		for k, v := range env {
			s.env[k] = v
		}
	}
}

// WithClock overrides the time source used when scheduling tasks.
func WithClock(now func() time.Time) Option {
	return func(s *Shell) { s.now = now }
}

// New creates a shell whose cwd starts at HOME.
func New(fs *vfs.FS, opts ...Option) *Shell {
	s := &Shell{
		fs:  fs,
		now: time.Now,
		log: logging.Named("shell"),
		env: map[string]string{
			"PATH":  "/usr/local/bin:/usr/bin:/bin",
			"HOME":  "/home/" + DefaultUser,
			"USER":  DefaultUser,
			"SHELL": "/bin/vsh",
			"TERM":  "xterm-256color",
			"LANG":  "en_US.UTF-8",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	var pkgs script.Packages
	if s.pkgs != nil {
		pkgs = s.pkgs
	}
	s.scripts = script.New(fs, pkgs, script.WithExecutor(s))
	s.cwd = s.env["HOME"]
	return s
}

// SetTasks attaches a task manager after construction; the scheduler is
// built on top of the shell.
func (s *Shell) SetTasks(t TaskManager) {
	s.tasks = t
}

// SetObjectives attaches an objective runner after construction.
func (s *Shell) SetObjectives(o Objectives) {
	s.objectives = o
}

// Cwd returns the current working directory.
func (s *Shell) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *Shell) setCwd(dir string) {
	s.mu.Lock()
	s.cwd = dir
	s.mu.Unlock()
}

// Env returns a copy of the environment with PWD set to the cwd.
func (s *Shell) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.env)+1)
	for k, v := range s.env {
		out[k] = v
	}
	out["PWD"] = s.cwd
	return out
}

// Fork returns a shell sharing every service but with its own cwd.
func (s *Shell) Fork(cwd string) *Shell {
	s.mu.Lock()
	env := make(map[string]string, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	s.mu.Unlock()
	if cwd == "" {
		cwd = env["HOME"]
	}
	return &Shell{
		fs:         s.fs,
		vcs:        s.vcs,
		pkgs:       s.pkgs,
		scripts:    s.scripts,
		objectives: s.objectives,
		tasks:      s.tasks,
		now:        s.now,
		log:        s.log,
		cwd:        cwd,
		env:        env,
	}
}

// Exec runs line in a forked shell rooted at cwd. It backs child_process.
func (s *Shell) Exec(ctx context.Context, cwd, line string) types.ShellResult {
	return s.Fork(cwd).Execute(ctx, line)
}

// resolve interprets a path argument against the cwd.
func (s *Shell) resolve(arg string) string {
	return vfs.Resolve(s.Cwd(), arg)
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) (res types.ShellResult) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return types.Success("")
	}
	name, args := tokens[0], tokens[1:]

	b, ok := builtins[name]
	if !ok {
		metrics.RecordShellCommand("unknown", types.ExitCommandNotFound)
		return types.Failure(types.ExitCommandNotFound, "%s: command not found\n", name)
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("built-in panicked", zap.String("command", name), zap.Any("panic", r))
			res = types.Failure(types.ExitFailure, "%s: internal error: %v\n", name, r)
		}
		metrics.RecordShellCommand(name, res.ExitCode)
	}()

	s.log.Debug("execute", zap.String("command", name), zap.Strings("args", args), zap.String("cwd", s.Cwd()))
	return b.run(s, ctx, args)
}

type builtin struct {
	usage   string
	summary string
	run     func(s *Shell, ctx context.Context, args []string) types.ShellResult
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"ls":     {"ls [path]", "List directory contents", (*Shell).cmdLs},
		"cd":     {"cd [path]", "Change the working directory", (*Shell).cmdCd},
		"pwd":    {"pwd", "Print the working directory", (*Shell).cmdPwd},
		"cat":    {"cat <path>...", "Print file contents", (*Shell).cmdCat},
		"echo":   {"echo <text> [> file | >> file]", "Print or write text", (*Shell).cmdEcho},
		"mkdir":  {"mkdir [-p] <path>...", "Create directories", (*Shell).cmdMkdir},
		"rm":     {"rm [-rf] <path>...", "Remove files and directories", (*Shell).cmdRm},
		"touch":  {"touch <path>...", "Create files or update their timestamps", (*Shell).cmdTouch},
		"env":    {"env", "Print the environment", (*Shell).cmdEnv},
		"whoami": {"whoami", "Print the current user", (*Shell).cmdWhoami},
		"apm":    {"apm install <pkg>[@version] | apm list", "Install script packages", (*Shell).cmdApm},
		"git":    {"git <clone|init|status|add|rm|commit|log|branch>", "Version control", (*Shell).cmdGit},
		"npx":    {"npx agent <run|schedule|tasks|cancel|media>", "Agent orchestration", (*Shell).cmdNpx},
		"node":   {"node <file | code>", "Run a script", (*Shell).cmdNode},
		"js":     {"js <file | code>", "Run a script", (*Shell).cmdNode},
		"help":   {"help", "Show this help", (*Shell).cmdHelp},
	}
}

// Commands lists the built-in names, sorted.
func Commands() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Shell) cmdHelp(_ context.Context, _ []string) types.ShellResult {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range Commands() {
		fmt.Fprintf(&b, "  %-48s %s\n", builtins[name].usage, builtins[name].summary)
	}
	return types.Success(b.String())
}

// fail formats a ToolFailure.
func fail(cmd string, format string, args ...interface{}) types.ShellResult {
	return types.Failure(types.ExitFailure, "%s: %s\n", cmd, fmt.Sprintf(format, args...))
}
