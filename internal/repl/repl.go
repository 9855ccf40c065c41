package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/vos/internal/shell"
	"github.com/steveyegge/vos/internal/vfs"
)

// REPL represents the interactive shell
type REPL struct {
	shell    *shell.Shell
	fs       *vfs.FS
	rl       *readline.Instance
	user     string
	prompt   string
	history  string
	stdin    io.ReadCloser
	stdout   io.Writer
	stderr   io.Writer
	commands map[string]CommandHandler
}

// CommandHandler handles a REPL-level command that is not a shell builtin
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Shell *shell.Shell
	FS    *vfs.FS
	User  string
	// Prompt follows the cwd, default "$ ".
	Prompt string
	// HistoryFile persists readline history; empty keeps it in memory.
	HistoryFile string

	// Stdin, Stdout and Stderr default to the process streams.
	Stdin  io.ReadCloser
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Shell == nil {
		return nil, fmt.Errorf("shell is required")
	}
	if cfg.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}

	r := &REPL{
		shell:    cfg.Shell,
		fs:       cfg.FS,
		user:     cfg.User,
		prompt:   cfg.Prompt,
		history:  cfg.HistoryFile,
		stdin:    cfg.Stdin,
		stdout:   cfg.Stdout,
		stderr:   cfg.Stderr,
		commands: make(map[string]CommandHandler),
	}
	if r.user == "" {
		r.user = "user"
	}
	if r.prompt == "" {
		r.prompt = "$ "
	}
	if r.stdin == nil {
		r.stdin = os.Stdin
	}
	if r.stdout == nil {
		r.stdout = os.Stdout
	}
	if r.stderr == nil {
		r.stderr = os.Stderr
	}

	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            r.promptString(),
		HistoryFile:       r.history,
		AutoComplete:      &completer{shell: r.shell, fs: r.fs, extra: r.commandNames()},
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             r.stdin,
		Stdout:            r.stdout,
		Stderr:            r.stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Ctrl+C - just show prompt again
				continue
			} else if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.stdout)
				return nil
			}
			return err
		}

		if err := r.processInput(ctx, line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.stderr, "%s %v\n", red("Error:"), err)
		}
		rl.SetPrompt(r.promptString())
	}
}

// processInput runs one line: REPL commands first, then the shell.
func (r *REPL) processInput(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	parts := strings.Fields(line)
	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}

	res := r.shell.Execute(ctx, line)
	if res.Stdout != "" {
		fmt.Fprint(r.stdout, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(r.stdout)
		}
	}
	if res.Stderr != "" {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprint(r.stderr, red(res.Stderr))
	}
	return nil
}

// promptString renders user@vos:cwd with the home directory shown as ~.
func (r *REPL) promptString() string {
	cwd := r.shell.Cwd()
	home := r.shell.Env()["HOME"]
	if home != "" && home != "/" && (cwd == home || strings.HasPrefix(cwd, home+"/")) {
		cwd = "~" + strings.TrimPrefix(cwd, home)
	}
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	blue := color.New(color.FgBlue, color.Bold).SprintFunc()
	return fmt.Sprintf("%s:%s%s", green(r.user+"@vos"), blue(cwd), r.prompt)
}

// registerCommands registers the REPL-only commands
func (r *REPL) registerCommands() {
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["clear"] = r.cmdClear
}

func (r *REPL) commandNames() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.stdout, "\n%s\n", cyan("vos - virtual operating-system shell"))
	fmt.Fprintln(r.stdout, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.stdout)
}

func (r *REPL) cmdClear(_ []string) error {
	fmt.Fprint(r.stdout, "\033[H\033[2J")
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(_ []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.stdout, "%s Goodbye!\n", green("✓"))
	return io.EOF
}
