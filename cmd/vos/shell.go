package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vos/internal/repl"
)

var shellCmd = &cobra.Command{
	Use:     "shell",
	Aliases: []string{"repl"},
	Short:   "Start the interactive shell",
	Long: `Start an interactive shell over the vos filesystem.

The prompt shows the current directory. Tab completes command names and
paths. History is kept in the data directory. Type 'help' for the command
list and 'exit' to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, _, err := openApp(ctx, "console")
		if err != nil {
			return err
		}
		defer closeApp(a)

		r, err := repl.New(&repl.Config{
			Shell:       a.Shell,
			FS:          a.FS,
			User:        a.Config.Shell.User,
			Prompt:      a.Config.Shell.Prompt,
			HistoryFile: a.Config.Shell.HistoryFile,
		})
		if err != nil {
			return fmt.Errorf("failed to create REPL: %w", err)
		}
		return r.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
