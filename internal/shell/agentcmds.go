package shell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/vos/internal/types"
)

// ErrMediaUnavailable is the stderr text for `npx agent media`.
const ErrMediaUnavailable = "media generation is not available"

const agentUsage = `usage: npx agent <command>

Commands:
  run <objective>                       Execute an objective now
  schedule [flags] <action>             Schedule a task
      --every <dur> | --hourly | --daily | --once
      --kind command|agent-objective|flow (default command)
      --name <name>
  tasks                                 List scheduled tasks
  cancel <id>                           Delete a scheduled task
  media <prompt>                        Generate media (unavailable)
`

func (s *Shell) cmdNpx(ctx context.Context, args []string) types.ShellResult {
	if len(args) == 0 {
		return fail("npx", "missing command")
	}
	if args[0] != "agent" {
		return fail("npx", "could not determine executable to run: %s", args[0])
	}
	if len(args) < 2 {
		return types.Failure(types.ExitFailure, "%s", agentUsage)
	}
	rest := args[2:]
	switch args[1] {
	case "run":
		return s.agentRun(ctx, rest)
	case "schedule":
		return s.agentSchedule(ctx, rest)
	case "tasks", "list":
		return s.agentTasks()
	case "cancel":
		return s.agentCancel(ctx, rest)
	case "media":
		return fail("agent", ErrMediaUnavailable)
	case "help", "--help", "-h":
		return types.Success(agentUsage)
	}
	return types.Failure(types.ExitFailure, "agent: unknown command '%s'\n%s", args[1], agentUsage)
}

func (s *Shell) agentRun(ctx context.Context, args []string) types.ShellResult {
	if s.objectives == nil {
		return fail("agent", "objective runner is not available")
	}
	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		return fail("agent", "run: missing objective")
	}
	out, err := s.objectives.ExecuteObjective(ctx, objective)
	if err != nil {
		return fail("agent", "%v", err)
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return types.Success(out)
}

func (s *Shell) agentSchedule(ctx context.Context, args []string) types.ShellResult {
	if s.tasks == nil {
		return fail("agent", "scheduler is not available")
	}
	set := flags("agent schedule")
	set.SetInterspersed(false)
	every := set.Duration("every", 0, "run repeatedly at this interval")
	hourly := set.Bool("hourly", false, "run every hour")
	daily := set.Bool("daily", false, "run every day")
	once := set.Bool("once", false, "run once")
	kind := set.String("kind", string(types.TaskKindCommand), "task kind")
	name := set.String("name", "", "task name")
	if err := set.Parse(args); err != nil {
		return fail("agent", "schedule: %v", err)
	}
	action := strings.TrimSpace(strings.Join(set.Args(), " "))
	if action == "" {
		return fail("agent", "schedule: missing action")
	}

	task := types.ScheduledTask{
		Name:       *name,
		Kind:       types.TaskKind(*kind),
		Action:     action,
		Recurrence: types.RecurrenceOnce,
		NextRunAt:  s.now(),
		Status:     types.TaskStatusActive,
	}
	picked := 0
	if *every > 0 {
		if *every%time.Second != 0 {
			return fail("agent", "schedule: --every must be a whole number of seconds")
		}
		task.Recurrence = types.RecurrenceInterval
		task.IntervalSeconds = int(*every / time.Second)
		picked++
	} else if set.Changed("every") {
		return fail("agent", "schedule: --every must be positive")
	}
	if *hourly {
		task.Recurrence = types.RecurrenceHourly
		picked++
	}
	if *daily {
		task.Recurrence = types.RecurrenceDaily
		picked++
	}
	if *once {
		picked++
	}
	if picked > 1 {
		return fail("agent", "schedule: choose one of --every, --hourly, --daily, --once")
	}
	if task.Name == "" {
		task.Name = summarize(action, 40)
	}

	created, err := s.tasks.Add(ctx, task)
	if err != nil {
		return fail("agent", "schedule: %v", err)
	}
	return types.Success(fmt.Sprintf("Scheduled task %s (%s, %s)\n", created.ID, created.Name, describeRecurrence(created)))
}

func (s *Shell) agentTasks() types.ShellResult {
	if s.tasks == nil {
		return fail("agent", "scheduler is not available")
	}
	tasks := s.tasks.List()
	if len(tasks) == 0 {
		return types.Success("No scheduled tasks\n")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-10s  %-15s  %-12s  %-20s  %s\n", "ID", "STATUS", "KIND", "RECURRENCE", "NEXT RUN", "NAME")
	for _, t := range tasks {
		fmt.Fprintf(&b, "%-36s  %-10s  %-15s  %-12s  %-20s  %s\n",
			t.ID, t.Status, t.Kind, describeRecurrence(t), t.NextRunAt.UTC().Format(time.DateTime), t.Name)
		if t.LastResultSummary != "" {
			fmt.Fprintf(&b, "    last: %s\n", t.LastResultSummary)
		}
	}
	return types.Success(b.String())
}

func (s *Shell) agentCancel(ctx context.Context, args []string) types.ShellResult {
	if s.tasks == nil {
		return fail("agent", "scheduler is not available")
	}
	if len(args) != 1 {
		return fail("agent", "cancel: expected exactly one task id")
	}
	if err := s.tasks.Delete(ctx, args[0]); err != nil {
		return fail("agent", "cancel: %v", err)
	}
	return types.Success(fmt.Sprintf("Cancelled task %s\n", args[0]))
}

func describeRecurrence(t types.ScheduledTask) string {
	if t.Recurrence == types.RecurrenceInterval {
		return fmt.Sprintf("every %s", time.Duration(t.IntervalSeconds)*time.Second)
	}
	return string(t.Recurrence)
}

func summarize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
