package types

import (
	"testing"
	"time"
)

func validTask() ScheduledTask {
	return ScheduledTask{
		ID:         "t1",
		Name:       "backup",
		Kind:       TaskKindCommand,
		Action:     "echo hi",
		Recurrence: RecurrenceOnce,
		Status:     TaskStatusActive,
	}
}

func TestScheduledTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ScheduledTask)
		wantErr bool
	}{
		{"valid once", func(*ScheduledTask) {}, false},
		{"valid interval", func(s *ScheduledTask) { s.Recurrence = RecurrenceInterval; s.IntervalSeconds = 5 }, false},
		{"valid flow", func(s *ScheduledTask) { s.Kind = TaskKindFlow }, false},
		{"missing name", func(s *ScheduledTask) { s.Name = "  " }, true},
		{"missing action", func(s *ScheduledTask) { s.Action = "" }, true},
		{"bad kind", func(s *ScheduledTask) { s.Kind = "shell" }, true},
		{"bad recurrence", func(s *ScheduledTask) { s.Recurrence = "weekly" }, true},
		{"bad status", func(s *ScheduledTask) { s.Status = "running" }, true},
		{"interval without seconds", func(s *ScheduledTask) { s.Recurrence = RecurrenceInterval }, true},
		{"seconds without interval", func(s *ScheduledTask) { s.IntervalSeconds = 10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(&task)
			err := task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduledTaskPeriod(t *testing.T) {
	tests := []struct {
		recurrence Recurrence
		interval   int
		want       time.Duration
	}{
		{RecurrenceOnce, 0, 0},
		{RecurrenceInterval, 5, 5 * time.Second},
		{RecurrenceHourly, 0, time.Hour},
		{RecurrenceDaily, 0, 24 * time.Hour},
	}
	for _, tt := range tests {
		task := ScheduledTask{Recurrence: tt.recurrence, IntervalSeconds: tt.interval}
		if got := task.Period(); got != tt.want {
			t.Errorf("%s: Period() = %v, want %v", tt.recurrence, got, tt.want)
		}
	}
}

func TestScheduledTaskIsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	task := validTask()

	task.NextRunAt = now
	if !task.IsDue(now) {
		t.Error("task whose nextRunAt == now should be due")
	}
	task.NextRunAt = now.Add(time.Second)
	if task.IsDue(now) {
		t.Error("future task should not be due")
	}
	task.NextRunAt = now.Add(-time.Second)
	task.Status = TaskStatusPaused
	if task.IsDue(now) {
		t.Error("paused task should never be due")
	}
}

func TestShellResultHelpers(t *testing.T) {
	ok := Success("hi")
	if !ok.OK() || ok.Output() != "hi" {
		t.Errorf("unexpected success result: %+v", ok)
	}
	fail := Failure(ExitCommandNotFound, "%s: command not found", "foobar")
	if fail.OK() || fail.ExitCode != 127 || fail.Output() != "foobar: command not found" {
		t.Errorf("unexpected failure result: %+v", fail)
	}
}

func TestGitStatusItemTriple(t *testing.T) {
	item := GitStatusItem{Path: "a", Status: GitStatusUnknown, Head: 0, Workdir: 0, Stage: 3}
	if got := item.Triple(); got != "[0,0,3]" {
		t.Errorf("Triple() = %q", got)
	}
}
