package types

import (
	"fmt"
	"strings"
	"time"
)

// Shell exit codes
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitCommandNotFound = 127
	ExitFatal           = 128
)

// ShellResult is the universal return value of a shell invocation
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// OK reports whether the command succeeded
func (r ShellResult) OK() bool {
	return r.ExitCode == ExitSuccess
}

// Output returns stdout, or stderr when stdout is empty
func (r ShellResult) Output() string {
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Success builds a successful result
func Success(stdout string) ShellResult {
	return ShellResult{Stdout: stdout, ExitCode: ExitSuccess}
}

// Failure builds a failed result with a stderr message
func Failure(code int, format string, args ...interface{}) ShellResult {
	return ShellResult{Stderr: fmt.Sprintf(format, args...), ExitCode: code}
}

// TaskKind selects how a scheduled task's action is executed
type TaskKind string

const (
	TaskKindCommand        TaskKind = "command"         // action is a shell command line
	TaskKindAgentObjective TaskKind = "agent-objective" // action is a natural-language objective
	TaskKindFlow           TaskKind = "flow"            // action names a flow file
)

// IsValid checks if the kind value is valid
func (k TaskKind) IsValid() bool {
	switch k {
	case TaskKindCommand, TaskKindAgentObjective, TaskKindFlow:
		return true
	}
	return false
}

// Recurrence controls when a task runs again
type Recurrence string

const (
	RecurrenceOnce     Recurrence = "once"
	RecurrenceInterval Recurrence = "interval"
	RecurrenceHourly   Recurrence = "hourly"
	RecurrenceDaily    Recurrence = "daily"
)

// IsValid checks if the recurrence value is valid
func (r Recurrence) IsValid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceInterval, RecurrenceHourly, RecurrenceDaily:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a scheduled task
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
)

// IsValid checks if the status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusActive, TaskStatusPaused, TaskStatusCompleted:
		return true
	}
	return false
}

// ScheduledTask is a recurring or one-shot unit of work run by the scheduler
type ScheduledTask struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Kind              TaskKind   `json:"kind"`
	Action            string     `json:"action"`
	Recurrence        Recurrence `json:"recurrence"`
	IntervalSeconds   int        `json:"intervalSeconds,omitempty"`
	NextRunAt         time.Time  `json:"nextRunAt"`
	LastRunAt         *time.Time `json:"lastRunAt,omitempty"`
	LastResultSummary string     `json:"lastResultSummary,omitempty"`
	Status            TaskStatus `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Validate checks if the task has valid field values
func (t *ScheduledTask) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(t.Action) == "" {
		return fmt.Errorf("action is required")
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("invalid kind: %s", t.Kind)
	}
	if !t.Recurrence.IsValid() {
		return fmt.Errorf("invalid recurrence: %s", t.Recurrence)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.Recurrence == RecurrenceInterval && t.IntervalSeconds <= 0 {
		return fmt.Errorf("intervalSeconds must be positive for interval tasks (got %d)", t.IntervalSeconds)
	}
	if t.Recurrence != RecurrenceInterval && t.IntervalSeconds != 0 {
		return fmt.Errorf("intervalSeconds is only valid for interval tasks")
	}
	return nil
}

// Period returns how far nextRunAt advances after a run (0 for once)
func (t *ScheduledTask) Period() time.Duration {
	switch t.Recurrence {
	case RecurrenceInterval:
		return time.Duration(t.IntervalSeconds) * time.Second
	case RecurrenceHourly:
		return time.Hour
	case RecurrenceDaily:
		return 24 * time.Hour
	}
	return 0
}

// IsDue reports whether the task should run at now
func (t *ScheduledTask) IsDue(now time.Time) bool {
	return t.Status == TaskStatusActive && !t.NextRunAt.After(now)
}

// GitFileStatus is the human label for a path's version-control state
type GitFileStatus string

const (
	GitStatusNew        GitFileStatus = "new"
	GitStatusModified   GitFileStatus = "modified"
	GitStatusDeleted    GitFileStatus = "deleted"
	GitStatusUnmodified GitFileStatus = "unmodified"
	GitStatusUnknown    GitFileStatus = "unknown"
)

// GitStatusItem is one row of `git status`, derived from the status matrix
type GitStatusItem struct {
	Path   string        `json:"path"`
	Status GitFileStatus `json:"status"`
	Staged bool          `json:"staged"`
	// Raw (head, workdir, stage) codes, kept so unknown rows can be diagnosed
	Head    int `json:"head"`
	Workdir int `json:"workdir"`
	Stage   int `json:"stage"`
}

// Triple formats the raw status codes as [head, workdir, stage]
func (g GitStatusItem) Triple() string {
	return fmt.Sprintf("[%d,%d,%d]", g.Head, g.Workdir, g.Stage)
}
