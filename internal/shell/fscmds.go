package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

// flags builds a FlagSet that reports parse errors instead of printing.
func flags(cmd string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)
	return fs
}

// describe turns a VFS error into the short text shown after "<cmd>: ".
func describe(arg string, err error) string {
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		return fmt.Sprintf("%s: No such file or directory", arg)
	case errors.Is(err, vfs.ErrNotADirectory):
		return fmt.Sprintf("%s: Not a directory", arg)
	case errors.Is(err, vfs.ErrIsADirectory):
		return fmt.Sprintf("%s: Is a directory", arg)
	case errors.Is(err, vfs.ErrInvalidPath):
		return fmt.Sprintf("%s: Invalid path", arg)
	}
	return fmt.Sprintf("%s: %v", arg, err)
}

func (s *Shell) cmdLs(_ context.Context, args []string) types.ShellResult {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	p := s.resolve(target)
	st, err := s.fs.Stat(p)
	if err != nil {
		return fail("ls", "cannot access %s", describe(target, err))
	}
	if !st.IsDir() {
		return types.Success(st.Name + "\n")
	}
	entries, err := s.fs.ReadDir(p)
	if err != nil {
		return fail("ls", "cannot access %s", describe(target, err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name)
		if e.IsDir() {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
	}
	return types.Success(b.String())
}

func (s *Shell) cmdCd(_ context.Context, args []string) types.ShellResult {
	target := s.Env()["HOME"]
	if len(args) > 0 {
		target = args[0]
	}
	p := s.resolve(target)
	st, err := s.fs.Stat(p)
	if err != nil {
		return fail("cd", "%s", describe(target, err))
	}
	if !st.IsDir() {
		return fail("cd", "%s: Not a directory", target)
	}
	s.setCwd(p)
	return types.Success("")
}

func (s *Shell) cmdPwd(_ context.Context, _ []string) types.ShellResult {
	return types.Success(s.Cwd() + "\n")
}

func (s *Shell) cmdCat(_ context.Context, args []string) types.ShellResult {
	if len(args) == 0 {
		return fail("cat", "missing file operand")
	}
	var b strings.Builder
	for _, arg := range args {
		data, err := s.fs.ReadFile(s.resolve(arg))
		if err != nil {
			return types.ShellResult{
				Stdout:   b.String(),
				Stderr:   "cat: " + describe(arg, err) + "\n",
				ExitCode: types.ExitFailure,
			}
		}
		b.Write(data)
	}
	return types.Success(b.String())
}

func (s *Shell) cmdEcho(ctx context.Context, args []string) types.ShellResult {
	for i, a := range args {
		if a != ">" && a != ">>" {
			continue
		}
		if i+1 >= len(args) {
			return fail("echo", "syntax error: missing redirect target")
		}
		text := strings.Join(args[:i], " ")
		target := args[i+1]
		if err := s.fs.WriteFile(ctx, s.resolve(target), []byte(text), a == ">>"); err != nil {
			return fail("echo", "%s", describe(target, err))
		}
		return types.Success("")
	}
	return types.Success(strings.Join(args, " ") + "\n")
}

// cmdMkdir always creates missing parents and accepts existing directories;
// -p is accepted for compatibility. Only a file in the way is an error.
func (s *Shell) cmdMkdir(ctx context.Context, args []string) types.ShellResult {
	set := flags("mkdir")
	set.BoolP("parents", "p", false, "create parent directories as needed (always on)")
	if err := set.Parse(args); err != nil {
		return fail("mkdir", "%v", err)
	}
	if set.NArg() == 0 {
		return fail("mkdir", "missing operand")
	}
	for _, arg := range set.Args() {
		if err := s.fs.Mkdir(ctx, s.resolve(arg)); err != nil {
			return fail("mkdir", "cannot create directory %s", describe(arg, err))
		}
	}
	return types.Success("")
}

func (s *Shell) cmdRm(ctx context.Context, args []string) types.ShellResult {
	set := flags("rm")
	set.BoolP("recursive", "r", false, "remove directories and their contents")
	set.BoolP("force", "f", false, "ignore nonexistent files")
	if err := set.Parse(args); err != nil {
		return fail("rm", "%v", err)
	}
	if set.NArg() == 0 {
		return fail("rm", "missing operand")
	}
	for _, arg := range set.Args() {
		p := s.resolve(arg)
		if p == "/" {
			return fail("rm", "refusing to remove '/'")
		}
		if err := s.fs.Delete(ctx, p); err != nil {
			return fail("rm", "cannot remove %s", describe(arg, err))
		}
	}
	return types.Success("")
}

func (s *Shell) cmdTouch(ctx context.Context, args []string) types.ShellResult {
	if len(args) == 0 {
		return fail("touch", "missing file operand")
	}
	for _, arg := range args {
		if err := s.fs.WriteFile(ctx, s.resolve(arg), nil, true); err != nil {
			return fail("touch", "cannot touch %s", describe(arg, err))
		}
	}
	return types.Success("")
}

func (s *Shell) cmdEnv(_ context.Context, _ []string) types.ShellResult {
	env := s.Env()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	return types.Success(b.String())
}

func (s *Shell) cmdWhoami(_ context.Context, _ []string) types.ShellResult {
	return types.Success(s.Env()["USER"] + "\n")
}
