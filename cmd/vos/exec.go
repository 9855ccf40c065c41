package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vos/internal/control"
	"github.com/steveyegge/vos/internal/storage"
	"github.com/steveyegge/vos/internal/types"
)

var (
	execRemote bool
	execLocal  bool
	execCwd    string
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command line>",
	Short: "Run one shell command",
	Long: `Run one shell command and exit with its exit code.

When a daemon is running against the same data directory the command is
sent over its control socket, so only one process ever writes the tree.
--remote requires the daemon; --local opens storage directly regardless.

Example:
  vos exec -- ls /workspace
  vos exec -- 'echo hi > /workspace/t.txt'
  vos exec --cwd /workspace -- git status`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if execRemote && execLocal {
			return fmt.Errorf("--remote and --local are mutually exclusive")
		}
		line := strings.Join(args, " ")
		res, err := runExec(cmd.Context(), line)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
		if !res.OK() {
			exitWith(res.ExitCode)
		}
		return nil
	},
}

func init() {
	execCmd.Flags().BoolVar(&execRemote, "remote", false, "Send the command to the running daemon")
	execCmd.Flags().BoolVar(&execLocal, "local", false, "Open storage directly even if a daemon is running")
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "Working directory inside the VFS (default: home)")
	rootCmd.AddCommand(execCmd)
}

// runExec routes line to the daemon when one holds the data directory,
// otherwise runs it in-process.
func runExec(ctx context.Context, line string) (types.ShellResult, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return types.ShellResult{}, err
	}

	if !execLocal {
		socket, err := daemonSocket(dir)
		if err != nil {
			return types.ShellResult{}, err
		}
		if socket != "" {
			return control.NewClient(socket).Exec(execCwd, line)
		}
		if execRemote {
			return types.ShellResult{}, fmt.Errorf("no running daemon for %s (start one with 'vos daemon')", dir)
		}
	}

	a, _, err := openApp(ctx, "console")
	if err != nil {
		return types.ShellResult{}, err
	}
	defer closeApp(a)
	return a.Exec(ctx, execCwd, line), nil
}

// daemonSocket returns the control socket of the live daemon holding dir,
// or "" when none is running.
func daemonSocket(dir string) (string, error) {
	lock, err := storage.ReadDaemonLock(dir)
	if err != nil || lock == nil {
		return "", err
	}
	socket := lock.Socket
	if socket == "" {
		socket = filepath.Join(dir, control.SocketName)
	}
	if _, err := os.Stat(socket); err != nil {
		return "", nil
	}
	return socket, nil
}

// printResult writes a shell result the way a terminal would show it.
func printResult(stdout, stderr io.Writer, res types.ShellResult) {
	if res.Stdout != "" {
		fmt.Fprint(stdout, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(stdout)
		}
	}
	if res.Stderr != "" {
		fmt.Fprint(stderr, res.Stderr)
	}
}

// exitWith flushes stdout and exits with code. Commands whose exit status
// mirrors a shell result use it instead of returning an error.
func exitWith(code int) {
	_ = os.Stdout.Sync()
	os.Exit(code)
}
