// Package script runs Starlark programs against the virtual filesystem.
// Programs import modules with require(name) or load(name, ...); names go
// through a Resolver, so core modules, files and installed packages are
// pluggable.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

// DefaultMaxSteps bounds a single run.
const DefaultMaxSteps = 10_000_000

// Executor runs a shell command line for child_process.
type Executor interface {
	Exec(ctx context.Context, cwd, line string) types.ShellResult
}

// Packages is the package installation side-channel.
type Packages interface {
	EnsureInstalled(ctx context.Context, name string) (string, error)
}

// Runtime executes scripts. It is safe to reuse; each run gets its own
// Session.
type Runtime struct {
	fs       *vfs.FS
	resolver Resolver
	exec     Executor
	maxSteps uint64
	log      *zap.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithResolver replaces the default resolver chain.
func WithResolver(r Resolver) Option {
	return func(rt *Runtime) { rt.resolver = r }
}

// WithExecutor binds child_process to e.
func WithExecutor(e Executor) Option {
	return func(rt *Runtime) { rt.exec = e }
}

// WithMaxSteps overrides DefaultMaxSteps. Zero means unlimited.
func WithMaxSteps(n uint64) Option {
	return func(rt *Runtime) { rt.maxSteps = n }
}

// New creates a runtime. The default resolver serves core modules, then
// files, then packages (when pkgs is non-nil).
func New(fs *vfs.FS, pkgs Packages, opts ...Option) *Runtime {
	rt := &Runtime{
		fs:       fs,
		maxSteps: DefaultMaxSteps,
		log:      logging.Named("script"),
	}
	chain := Chain{CoreResolver{}, FileResolver{}}
	if pkgs != nil {
		chain = append(chain, PackageResolver{Packages: pkgs})
	}
	rt.resolver = chain
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// SetExecutor binds child_process after construction, for executors that
// themselves own the runtime.
func (rt *Runtime) SetExecutor(e Executor) {
	rt.exec = e
}

// Options are per-run settings.
type Options struct {
	Cwd  string
	Env  map[string]string
	Args []string
}

// RunFile executes the script at path (resolved against opts.Cwd).
func (rt *Runtime) RunFile(ctx context.Context, path string, opts Options) (string, error) {
	abs := vfs.Resolve(cwdOr(opts.Cwd), path)
	src, err := rt.fs.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return rt.run(ctx, abs, string(src), opts)
}

// RunSource executes inline source. filename is used in error messages.
func (rt *Runtime) RunSource(ctx context.Context, filename, src string, opts Options) (string, error) {
	if filename == "" {
		filename = "<inline>"
	}
	return rt.run(ctx, filename, src, opts)
}

func (rt *Runtime) run(ctx context.Context, filename, src string, opts Options) (string, error) {
	s := newSession(ctx, rt, opts)
	id, dir := "main:"+filename, cwdOr(opts.Cwd)
	if strings.HasPrefix(filename, "/") {
		id, dir = "file:"+filename, vfs.Dir(filename)
	}
	_, err := s.execModule(id, filename, dir, src)
	out := s.out.String()
	if err != nil {
		rt.log.Debug("script failed", zap.String("file", filename), zap.Error(err))
		return out, scriptError(err)
	}
	return out, nil
}

func cwdOr(cwd string) string {
	if cwd == "" {
		return "/"
	}
	return cwd
}

// scriptError keeps the Starlark backtrace for evaluation errors.
func scriptError(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return errors.New(evalErr.Backtrace())
	}
	return err
}

// Session is the state of a single run: output, module cache and the
// directory stack used for relative requires.
type Session struct {
	ctx     context.Context
	rt      *Runtime
	cwd     string
	env     map[string]string
	args    []string
	out     bytes.Buffer
	cache   map[string]starlark.Value
	loading map[string]bool
	dirs    []string
}

func newSession(ctx context.Context, rt *Runtime, opts Options) *Session {
	env := map[string]string{}
	for k, v := range opts.Env {
		env[k] = v
	}
	return &Session{
		ctx:     ctx,
		rt:      rt,
		cwd:     cwdOr(opts.Cwd),
		env:     env,
		args:    opts.Args,
		cache:   map[string]starlark.Value{},
		loading: map[string]bool{},
	}
}

// Context returns the run's context.
func (s *Session) Context() context.Context { return s.ctx }

// FS returns the filesystem scripts operate on.
func (s *Session) FS() *vfs.FS { return s.rt.fs }

// Dir is the directory of the module currently executing.
func (s *Session) Dir() string {
	if len(s.dirs) == 0 {
		return s.cwd
	}
	return s.dirs[len(s.dirs)-1]
}

func (s *Session) thread(name string) *starlark.Thread {
	th := &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, msg string) { s.out.WriteString(msg + "\n") },
		Load:  s.load,
	}
	if s.rt.maxSteps > 0 {
		th.SetMaxExecutionSteps(s.rt.maxSteps)
	}
	return th
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// execModule runs src once per id and returns its exports. Cycles are
// reported as errors.
func (s *Session) execModule(id, filename, dir, src string) (starlark.Value, error) {
	if v, ok := s.cache[id]; ok {
		return v, nil
	}
	if s.loading[id] {
		return nil, fmt.Errorf("require cycle through %s", filename)
	}
	s.loading[id] = true
	s.dirs = append(s.dirs, dir)
	defer func() {
		delete(s.loading, id)
		s.dirs = s.dirs[:len(s.dirs)-1]
	}()

	th := s.thread(filename)
	stop := context.AfterFunc(s.ctx, func() { th.Cancel("context cancelled") })
	defer stop()

	globals, err := starlark.ExecFileOptions(fileOptions, th, filename, src, s.predeclared())
	if err != nil {
		return nil, err
	}
	exports := moduleExports(globals)
	s.cache[id] = exports
	return exports, nil
}

// moduleExports returns the module's `exports` global, or a struct of all
// its public globals when it does not assign one.
func moduleExports(globals starlark.StringDict) starlark.Value {
	if v, ok := globals["exports"]; ok {
		return v
	}
	public := starlark.StringDict{}
	for k, v := range globals {
		if !strings.HasPrefix(k, "_") {
			public[k] = v
		}
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, public)
}

func (s *Session) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"require": starlark.NewBuiltin("require", s.requireBuiltin),
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

func (s *Session) requireBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return s.Require(name)
}

// Require resolves name through the runtime's resolver.
func (s *Session) Require(name string) (starlark.Value, error) {
	v, err := s.rt.resolver.Resolve(s, name)
	if errors.Is(err, ErrModuleNotFound) {
		return nil, fmt.Errorf("Cannot find module '%s'", name)
	}
	return v, err
}

// load implements the load statement on top of Require. The module's
// exports struct (or dict) supplies the loaded symbols.
func (s *Session) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	v, err := s.Require(module)
	if err != nil {
		return nil, err
	}
	out := starlark.StringDict{}
	switch m := v.(type) {
	case *starlarkstruct.Struct:
		m.ToStringDict(out)
	case *starlark.Dict:
		for _, item := range m.Items() {
			if k, ok := starlark.AsString(item[0]); ok {
				out[k] = item[1]
			}
		}
	case starlark.HasAttrs:
		for _, name := range m.AttrNames() {
			if attr, err := m.Attr(name); err == nil && attr != nil {
				out[name] = attr
			}
		}
	default:
		return nil, fmt.Errorf("module %s has no loadable symbols", module)
	}
	return out, nil
}
