package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/vos/internal/script"
	"github.com/steveyegge/vos/internal/types"
)

func (s *Shell) cmdApm(ctx context.Context, args []string) types.ShellResult {
	if s.pkgs == nil {
		return fail("apm", "package manager is not available")
	}
	if len(args) == 0 {
		return types.Failure(types.ExitFailure, "usage: %s\n", builtins["apm"].usage)
	}
	switch args[0] {
	case "install", "i", "add":
		if len(args) < 2 {
			return fail("apm", "install: missing package name")
		}
		var b strings.Builder
		for _, spec := range args[1:] {
			inst, err := s.pkgs.Install(ctx, spec)
			if err != nil {
				return types.ShellResult{
					Stdout:   b.String(),
					Stderr:   fmt.Sprintf("apm: %v\n", err),
					ExitCode: types.ExitFailure,
				}
			}
			fmt.Fprintf(&b, "+ %s@%s\n", inst.Name, inst.Version)
		}
		fmt.Fprintf(&b, "added %d package(s)\n", len(args)-1)
		return types.Success(b.String())
	case "list", "ls":
		installed, err := s.pkgs.List()
		if err != nil {
			return fail("apm", "%v", err)
		}
		if len(installed) == 0 {
			return types.Success("(no packages installed)\n")
		}
		var b strings.Builder
		for _, inst := range installed {
			fmt.Fprintf(&b, "%s@%s\n", inst.Name, inst.Version)
		}
		return types.Success(b.String())
	}
	return fail("apm", "unknown command '%s'", args[0])
}

// cmdNode runs a script file, or treats the arguments as inline source
// when the first one is not a file.
func (s *Shell) cmdNode(ctx context.Context, args []string) types.ShellResult {
	if len(args) == 0 {
		return fail("node", "missing script file or inline source")
	}
	opts := script.Options{Cwd: s.Cwd(), Env: s.Env()}

	var (
		out string
		err error
	)
	switch {
	case args[0] == "-e" || args[0] == "--eval":
		if len(args) < 2 {
			return fail("node", "%s requires an argument", args[0])
		}
		out, err = s.scripts.RunSource(ctx, "[eval]", strings.Join(args[1:], " "), opts)
	case s.isFile(args[0]):
		opts.Args = args[1:]
		out, err = s.scripts.RunFile(ctx, args[0], opts)
	default:
		out, err = s.scripts.RunSource(ctx, "[eval]", strings.Join(args, " "), opts)
	}
	if err != nil {
		return types.ShellResult{
			Stdout:   out,
			Stderr:   fmt.Sprintf("node: %v\n", err),
			ExitCode: types.ExitFailure,
		}
	}
	return types.Success(out)
}

func (s *Shell) isFile(arg string) bool {
	st, err := s.fs.Stat(s.resolve(arg))
	return err == nil && !st.IsDir()
}
