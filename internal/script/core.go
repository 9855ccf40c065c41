package script

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

// DefaultCoreModules returns the built-in module table.
func DefaultCoreModules() map[string]CoreModule {
	return map[string]CoreModule{
		"path":          pathModule,
		"os":            osModule,
		"fs":            fsModule,
		"events":        eventsModule,
		"child_process": childProcessModule,
		"process":       processModule,
	}
}

type builtinFn func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func module(name string, members starlark.StringDict) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String(name), members)
}

func fn(name string, f builtinFn) *starlark.Builtin {
	return starlark.NewBuiltin(name, f)
}

func stringArgs(b *starlark.Builtin, args starlark.Tuple) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d must be a string, got %s", b.Name(), i+1, a.Type())
		}
		out[i] = s
	}
	return out, nil
}

func pathModule(s *Session) starlark.Value {
	return module("path", starlark.StringDict{
		"sep": starlark.String("/"),
		"join": fn("join", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			parts, err := stringArgs(b, args)
			if err != nil {
				return nil, err
			}
			return starlark.String(path.Join(parts...)), nil
		}),
		"resolve": fn("resolve", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			parts, err := stringArgs(b, args)
			if err != nil {
				return nil, err
			}
			p := s.cwd
			for _, part := range parts {
				p = vfs.Resolve(p, part)
			}
			return starlark.String(p), nil
		}),
		"dirname":     fn("dirname", unary(func(p string) starlark.Value { return starlark.String(path.Dir(p)) })),
		"basename":    fn("basename", unary(func(p string) starlark.Value { return starlark.String(path.Base(p)) })),
		"extname":     fn("extname", unary(func(p string) starlark.Value { return starlark.String(path.Ext(p)) })),
		"is_absolute": fn("is_absolute", unary(func(p string) starlark.Value { return starlark.Bool(strings.HasPrefix(p, "/")) })),
	})
}

func unary(f func(string) starlark.Value) builtinFn {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var p string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &p); err != nil {
			return nil, err
		}
		return f(p), nil
	}
}

func constant(v starlark.Value) *starlark.Builtin {
	return fn("constant", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return v, nil
	})
}

func osModule(s *Session) starlark.Value {
	home := s.env["HOME"]
	if home == "" {
		home = "/"
	}
	return module("os", starlark.StringDict{
		"EOL":      starlark.String("\n"),
		"platform": constant(starlark.String("vos")),
		"arch":     constant(starlark.String("wasm")),
		"hostname": constant(starlark.String("vos")),
		"homedir":  constant(starlark.String(home)),
		"tmpdir":   constant(starlark.String("/tmp")),
		"user":     constant(starlark.String(s.env["USER"])),
	})
}

func processModule(s *Session) starlark.Value {
	env := starlark.NewDict(len(s.env))
	keys := make([]string, 0, len(s.env))
	for k := range s.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env.SetKey(starlark.String(k), starlark.String(s.env[k]))
	}
	env.Freeze()
	argv := make([]starlark.Value, len(s.args))
	for i, a := range s.args {
		argv[i] = starlark.String(a)
	}
	return module("process", starlark.StringDict{
		"env":  env,
		"argv": starlark.NewList(argv),
		"cwd":  constant(starlark.String(s.cwd)),
	})
}

func fsModule(s *Session) starlark.Value {
	resolve := func(p string) string { return vfs.Resolve(s.cwd, p) }
	fs := s.FS()
	write := func(appendMode bool) builtinFn {
		return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var p, content string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &p, &content); err != nil {
				return nil, err
			}
			if err := fs.WriteFile(s.ctx, resolve(p), []byte(content), appendMode); err != nil {
				return nil, err
			}
			return starlark.None, nil
		}
	}
	pathOp := func(op func(string) (starlark.Value, error)) builtinFn {
		return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var p string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &p); err != nil {
				return nil, err
			}
			return op(resolve(p))
		}
	}

	return module("fs", starlark.StringDict{
		"read_file": fn("read_file", pathOp(func(p string) (starlark.Value, error) {
			data, err := fs.ReadFile(p)
			if err != nil {
				return nil, err
			}
			return starlark.String(data), nil
		})),
		"write_file":  fn("write_file", write(false)),
		"append_file": fn("append_file", write(true)),
		"exists": fn("exists", pathOp(func(p string) (starlark.Value, error) {
			return starlark.Bool(fs.Exists(p)), nil
		})),
		"mkdir": fn("mkdir", pathOp(func(p string) (starlark.Value, error) {
			return starlark.None, fs.Mkdir(s.ctx, p)
		})),
		"rm": fn("rm", pathOp(func(p string) (starlark.Value, error) {
			return starlark.None, fs.Delete(s.ctx, p)
		})),
		"readdir": fn("readdir", pathOp(func(p string) (starlark.Value, error) {
			entries, err := fs.ReadDir(p)
			if err != nil {
				return nil, err
			}
			names := make([]starlark.Value, len(entries))
			for i, e := range entries {
				names[i] = starlark.String(e.Name)
			}
			return starlark.NewList(names), nil
		})),
		"stat": fn("stat", pathOp(func(p string) (starlark.Value, error) {
			st, err := fs.Stat(p)
			if err != nil {
				return nil, err
			}
			return toValue(map[string]any{
				"name":          st.Name,
				"path":          st.Path,
				"size":          st.Size,
				"is_directory":  st.IsDir(),
				"language":      st.Language,
				"last_modified": st.LastModified.UnixMilli(),
			}), nil
		})),
	})
}

func childProcessModule(s *Session) starlark.Value {
	run := func(line string) (types.ShellResult, error) {
		if s.rt.exec == nil {
			return types.ShellResult{}, fmt.Errorf("child_process is not available")
		}
		return s.rt.exec.Exec(s.ctx, s.cwd, line), nil
	}
	return module("child_process", starlark.StringDict{
		"exec_sync": fn("exec_sync", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var line string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &line); err != nil {
				return nil, err
			}
			res, err := run(line)
			if err != nil {
				return nil, err
			}
			if !res.OK() {
				return nil, fmt.Errorf("command failed with exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
			}
			return starlark.String(res.Stdout), nil
		}),
		"exec": fn("exec", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var line string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &line); err != nil {
				return nil, err
			}
			res, err := run(line)
			if err != nil {
				return nil, err
			}
			return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
				"stdout": starlark.String(res.Stdout),
				"stderr": starlark.String(res.Stderr),
				"code":   starlark.MakeInt(res.ExitCode),
			}), nil
		}),
	})
}

// eventsModule provides EventEmitter(). Listeners run synchronously in
// registration order on emit.
func eventsModule(s *Session) starlark.Value {
	return module("events", starlark.StringDict{
		"EventEmitter": fn("EventEmitter", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return newEmitter(), nil
		}),
	})
}

func newEmitter() starlark.Value {
	listeners := map[string][]starlark.Callable{}
	return starlarkstruct.FromStringDict(starlark.String("EventEmitter"), starlark.StringDict{
		"on": fn("on", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			var cb starlark.Callable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &cb); err != nil {
				return nil, err
			}
			listeners[name] = append(listeners[name], cb)
			return starlark.None, nil
		}),
		"emit": fn("emit", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("%s: missing event name", b.Name())
			}
			name, ok := starlark.AsString(args[0])
			if !ok {
				return nil, fmt.Errorf("%s: event name must be a string", b.Name())
			}
			cbs := append([]starlark.Callable(nil), listeners[name]...)
			for _, cb := range cbs {
				if _, err := starlark.Call(thread, cb, args[1:], kwargs); err != nil {
					return nil, err
				}
			}
			return starlark.Bool(len(cbs) > 0), nil
		}),
		"listener_count": fn("listener_count", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
				return nil, err
			}
			return starlark.MakeInt(len(listeners[name])), nil
		}),
	})
}
