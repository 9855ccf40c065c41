package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vos/internal/app"
	"github.com/steveyegge/vos/internal/control"
	"github.com/steveyegge/vos/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled tasks",
	Long: `Manage the scheduler's task list.

Changes are written to the filesystem directly. When a daemon is running it
is told to reload, so it picks them up before its next tick.`,
}

var (
	taskName   string
	taskKind   string
	taskEvery  time.Duration
	taskHourly bool
	taskDaily  bool
)

var taskAddCmd = &cobra.Command{
	Use:   "add [flags] -- <action>",
	Short: "Schedule a command, objective, or flow",
	Long: `Schedule a task. Without a recurrence flag it runs once on the next tick.

Kinds:
  command          the action is a shell command line (default)
  agent-objective  the action is a natural-language objective
  flow             the action names a flow file

Example:
  vos task add --every 5m -- 'ls /workspace'
  vos task add --daily --kind flow nightly
  vos task add --kind agent-objective -- summarize /workspace/notes.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := taskFromFlags(taskName, taskKind, taskEvery, taskHourly, taskDaily, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return withTasks(cmd, func(ctx context.Context, a *app.App) error {
			created, err := a.Scheduler.Add(ctx, task)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(cmd.OutOrStdout(), "%s Scheduled task %s (%s)\n", green("✓"), created.ID, created.Name)
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List scheduled tasks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveDataDir()
		if err != nil {
			return err
		}
		socket, err := daemonSocket(dir)
		if err != nil {
			return err
		}
		if socket != "" {
			resp, err := control.NewClient(socket).Status()
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("daemon status failed: %s", resp.Error)
			}
			printTasks(cmd.OutOrStdout(), resp.Data.Tasks)
			return nil
		}

		a, _, err := openApp(cmd.Context(), "console")
		if err != nil {
			return err
		}
		defer closeApp(a)
		printTasks(cmd.OutOrStdout(), a.Tasks())
		return nil
	},
}

var taskRmCmd = &cobra.Command{
	Use:     "rm <task-id>",
	Aliases: []string{"cancel"},
	Short:   "Remove a scheduled task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed task %s\n", args[0])
			return nil
		})
	},
}

var taskPauseCmd = &cobra.Command{
	Use:   "pause <task-id>",
	Short: "Stop a task from running until resumed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler.Pause(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paused task %s\n", args[0])
			return nil
		})
	},
}

var taskResumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Resume a paused task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler.Resume(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed task %s\n", args[0])
			return nil
		})
	},
}

var taskRunCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Run a task now and record the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, a *app.App) error {
			task, err := a.Scheduler.RunNow(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ran task %s (%s)\n", task.ID, task.Name)
			if task.LastResultSummary != "" {
				fmt.Fprintln(out, task.LastResultSummary)
			}
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskName, "name", "", "Task name (default: derived from the action)")
	taskAddCmd.Flags().StringVar(&taskKind, "kind", string(types.TaskKindCommand), "Task kind: command, agent-objective, or flow")
	taskAddCmd.Flags().DurationVar(&taskEvery, "every", 0, "Run repeatedly at this interval (whole seconds)")
	taskAddCmd.Flags().BoolVar(&taskHourly, "hourly", false, "Run every hour")
	taskAddCmd.Flags().BoolVar(&taskDaily, "daily", false, "Run every day")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRmCmd, taskPauseCmd, taskResumeCmd, taskRunCmd)
	rootCmd.AddCommand(taskCmd)
}

// withTasks opens the app, applies fn, and asks a running daemon to reload.
func withTasks(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, dir, err := openApp(ctx, "console")
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := fn(ctx, a); err != nil {
		return err
	}

	socket, err := daemonSocket(dir)
	if err != nil || socket == "" {
		return err
	}
	resp, err := control.NewClient(socket).Reload()
	if err != nil {
		return fmt.Errorf("task saved, but the daemon did not reload: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("task saved, but the daemon did not reload: %s", resp.Error)
	}
	return nil
}

// taskFromFlags builds a task from `task add` flags. At most one recurrence
// flag may be given; none means run once.
func taskFromFlags(name, kind string, every time.Duration, hourly, daily bool, action string) (types.ScheduledTask, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return types.ScheduledTask{}, fmt.Errorf("missing action")
	}
	task := types.ScheduledTask{
		Name:       name,
		Kind:       types.TaskKind(kind),
		Action:     action,
		Recurrence: types.RecurrenceOnce,
	}

	picked := 0
	if every != 0 {
		if every < time.Second || every%time.Second != 0 {
			return types.ScheduledTask{}, fmt.Errorf("--every must be a positive whole number of seconds (got %s)", every)
		}
		task.Recurrence = types.RecurrenceInterval
		task.IntervalSeconds = int(every / time.Second)
		picked++
	}
	if hourly {
		task.Recurrence = types.RecurrenceHourly
		picked++
	}
	if daily {
		task.Recurrence = types.RecurrenceDaily
		picked++
	}
	if picked > 1 {
		return types.ScheduledTask{}, fmt.Errorf("choose one of --every, --hourly, --daily")
	}
	if !task.Kind.IsValid() {
		return types.ScheduledTask{}, fmt.Errorf("unknown task kind %q (want command, agent-objective, or flow)", kind)
	}
	if task.Name == "" {
		task.Name = action
		if r := []rune(action); len(r) > 40 {
			task.Name = string(r[:40]) + "..."
		}
	}
	return task, nil
}

// printTasks renders tasks as an aligned table.
func printTasks(w io.Writer, tasks []types.ScheduledTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No scheduled tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tKIND\tSCHEDULE\tNEXT RUN\tNAME")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Kind, schedule(t), t.NextRunAt.Local().Format("2006-01-02 15:04:05"), t.Name)
	}
	tw.Flush()

	for _, t := range tasks {
		if t.LastRunAt == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s last ran %s: %s\n", t.ID, t.LastRunAt.Local().Format(time.RFC3339), t.LastResultSummary)
	}
}

func schedule(t types.ScheduledTask) string {
	if t.Recurrence == types.RecurrenceInterval {
		return fmt.Sprintf("every %s", time.Duration(t.IntervalSeconds)*time.Second)
	}
	return string(t.Recurrence)
}
