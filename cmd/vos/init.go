package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vos/internal/config"
	"github.com/steveyegge/vos/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init [project-dir]",
	Short: "Create a .vos directory with a default config",
	Long: `Initialize vos state by creating a .vos/ directory.

This creates:
  - .vos/ directory
  - .vos/config.yaml (default configuration, sqlite storage)

The filesystem database is created on first use.

Example:
  cd ~/myproject
  vos init
  vos shell`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir := "."
		if len(args) > 0 {
			projectDir = args[0]
		}
		projectDir, err := filepath.Abs(projectDir)
		if err != nil {
			return fmt.Errorf("failed to resolve project directory: %w", err)
		}

		dir, err := storage.InitDataDir(projectDir)
		if err != nil {
			return err
		}
		cfgPath, err := config.WriteDefault(dir)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\n%s Initialized vos\n\n", green("✓"))
		fmt.Fprintf(out, "  Data directory: %s\n", cyan(dir))
		fmt.Fprintf(out, "  Config: %s\n", cyan(cfgPath))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s Next steps:\n", gray("→"))
		fmt.Fprintf(out, "  %s\n", gray("vos shell"))
		fmt.Fprintf(out, "  %s\n", gray("vos daemon"))
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
