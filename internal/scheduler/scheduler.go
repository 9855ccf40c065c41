// Package scheduler runs recurring and one-shot tasks against the shell and
// the objective runner. Tasks live in a JSON file inside the VFS; every
// mutation rewrites the whole list.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/events"
	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

const (
	// DefaultTasksPath is where the task list is persisted.
	DefaultTasksPath = "/system/tasks.json"
	// DefaultTickInterval is how often due tasks are scanned.
	DefaultTickInterval = time.Second
	// DefaultSummaryLength bounds lastResultSummary before the ellipsis.
	DefaultSummaryLength = 200

	errorPrefix = "Error: "
)

// ErrTaskNotFound is returned for unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// Runner executes command tasks.
type Runner interface {
	Execute(ctx context.Context, line string) types.ShellResult
}

// Objectives executes agent-objective and flow tasks.
type Objectives interface {
	ExecuteObjective(ctx context.Context, objective string) (string, error)
	ExecuteFlow(ctx context.Context, ref string) (string, error)
}

// Config holds scheduler settings. Zero values take the defaults.
type Config struct {
	TickInterval  time.Duration
	TasksPath     string
	SummaryLength int
}

// Scheduler owns the task list.
type Scheduler struct {
	fs         *vfs.FS
	runner     Runner
	objectives Objectives
	notifier   events.Notifier
	now        func() time.Time
	log        *zap.Logger

	tickInterval  time.Duration
	tasksPath     string
	summaryLength int

	mu      sync.Mutex
	tasks   []types.ScheduledTask
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// execMu keeps executions sequential across Tick and RunNow.
	execMu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithObjectives sets the runner for agent-objective and flow tasks.
func WithObjectives(o Objectives) Option {
	return func(s *Scheduler) { s.objectives = o }
}

// WithNotifier publishes task-run and task-complete events to n.
func WithNotifier(n events.Notifier) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. Call Load before Start to pick up persisted tasks.
func New(fs *vfs.FS, runner Runner, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		fs:            fs,
		runner:        runner,
		notifier:      events.NopNotifier{},
		now:           time.Now,
		log:           logging.Named("scheduler"),
		tickInterval:  cfg.TickInterval,
		tasksPath:     cfg.TasksPath,
		summaryLength: cfg.SummaryLength,
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	if s.tasksPath == "" {
		s.tasksPath = DefaultTasksPath
	}
	if s.summaryLength <= 0 {
		s.summaryLength = DefaultSummaryLength
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the persisted one. A missing file
// yields an empty list.
func (s *Scheduler) Load(ctx context.Context) error {
	data, err := s.fs.ReadFile(s.tasksPath)
	if vfs.IsNotFound(err) {
		s.mu.Lock()
		s.tasks = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	var tasks []types.ScheduledTask
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &tasks); err != nil {
			return fmt.Errorf("failed to parse %s: %w", s.tasksPath, err)
		}
	}
	for i := range tasks {
		if err := tasks[i].Validate(); err != nil {
			return fmt.Errorf("task %s in %s: %w", tasks[i].ID, s.tasksPath, err)
		}
	}
	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()
	s.log.Debug("loaded tasks", zap.Int("count", len(tasks)), zap.String("path", s.tasksPath))
	return nil
}

// persistLocked writes the whole list. Caller holds s.mu.
func (s *Scheduler) persistLocked(ctx context.Context) error {
	tasks := s.tasks
	if tasks == nil {
		tasks = []types.ScheduledTask{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	if err := s.fs.WriteFile(ctx, s.tasksPath, data, false); err != nil {
		return fmt.Errorf("failed to persist tasks: %w", err)
	}
	return nil
}

func (s *Scheduler) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Add validates and stores a task. Missing id, status, nextRunAt and
// createdAt are filled in.
func (s *Scheduler) Add(ctx context.Context, task types.ScheduledTask) (types.ScheduledTask, error) {
	now := s.now()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = types.TaskStatusActive
	}
	if task.NextRunAt.IsZero() {
		task.NextRunAt = now
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if err := task.Validate(); err != nil {
		return types.ScheduledTask{}, fmt.Errorf("invalid task: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(task.ID) >= 0 {
		return types.ScheduledTask{}, fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks = append(s.tasks, task)
	if err := s.persistLocked(ctx); err != nil {
		s.tasks = s.tasks[:len(s.tasks)-1]
		return types.ScheduledTask{}, err
	}
	s.log.Info("task added",
		zap.String("id", task.ID),
		zap.String("name", task.Name),
		zap.String("kind", string(task.Kind)),
		zap.String("recurrence", string(task.Recurrence)))
	return task, nil
}

// Delete removes a task.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	if err := s.persistLocked(ctx); err != nil {
		s.tasks = append(s.tasks[:i], append([]types.ScheduledTask{removed}, s.tasks[i:]...)...)
		return err
	}
	s.log.Info("task deleted", zap.String("id", id))
	return nil
}

// Pause stops an active task from running until it is resumed.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, types.TaskStatusPaused)
}

// Resume reactivates a paused or completed task. A completed once-task
// runs again at the next tick.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, types.TaskStatusActive)
}

func (s *Scheduler) setStatus(ctx context.Context, id string, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	prev := s.tasks[i]
	s.tasks[i].Status = status
	if status == types.TaskStatusActive && prev.Status == types.TaskStatusCompleted {
		s.tasks[i].NextRunAt = s.now()
	}
	if err := s.persistLocked(ctx); err != nil {
		s.tasks[i] = prev
		return err
	}
	return nil
}

// List returns a copy of all tasks in insertion order.
func (s *Scheduler) List() []types.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ScheduledTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get returns one task.
func (s *Scheduler) Get(id string) (types.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return types.ScheduledTask{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return s.tasks[i], nil
}

// RunNow executes a task immediately regardless of its schedule or status,
// then advances it exactly as a tick would.
func (s *Scheduler) RunNow(ctx context.Context, id string) (types.ScheduledTask, error) {
	task, err := s.Get(id)
	if err != nil {
		return types.ScheduledTask{}, err
	}
	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.execute(ctx, task, s.now())
}

// Tick runs every task due at now, sequentially in list order. It returns
// the number of tasks executed.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	now := s.now()
	s.mu.Lock()
	var due []types.ScheduledTask
	for _, t := range s.tasks {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	ran := 0
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		// An earlier task in this tick may have paused or removed it.
		cur, err := s.Get(t.ID)
		if err != nil || !cur.IsDue(now) {
			continue
		}
		if _, err := s.execute(ctx, cur, now); err != nil {
			s.log.Error("failed to record task result", zap.String("id", cur.ID), zap.Error(err))
		}
		ran++
	}
	return ran
}

// execute runs task without holding s.mu, so the task itself may add or
// remove tasks, then records the outcome.
func (s *Scheduler) execute(ctx context.Context, task types.ScheduledTask, now time.Time) (types.ScheduledTask, error) {
	s.notifier.Publish(events.NewTaskRunEvent(task.ID, task.Name))
	s.log.Info("running task",
		zap.String("id", task.ID),
		zap.String("name", task.Name),
		zap.String("kind", string(task.Kind)))

	start := time.Now()
	result, runErr := s.dispatch(ctx, task)
	success := runErr == nil
	if runErr != nil {
		result = errorPrefix + runErr.Error()
		s.log.Warn("task failed", zap.String("id", task.ID), zap.Error(runErr))
	}
	metrics.RecordSchedulerRun(string(task.Kind), time.Since(start), success)
	summary := Summarize(result, s.summaryLength)

	s.mu.Lock()
	i := s.indexLocked(task.ID)
	if i < 0 {
		s.mu.Unlock()
		s.notifier.Publish(events.NewTaskCompleteEvent(task.ID, summary, success))
		return task, nil
	}
	prev := s.tasks[i]
	t := &s.tasks[i]
	ranAt := now
	t.LastRunAt = &ranAt
	t.LastResultSummary = summary
	if period := t.Period(); period > 0 {
		t.NextRunAt = now.Add(period)
	} else {
		t.Status = types.TaskStatusCompleted
	}
	updated := *t
	err := s.persistLocked(ctx)
	if err != nil {
		s.tasks[i] = prev
	}
	s.mu.Unlock()

	s.notifier.Publish(events.NewTaskCompleteEvent(task.ID, summary, success))
	if err != nil {
		return task, err
	}
	return updated, nil
}

func (s *Scheduler) dispatch(ctx context.Context, task types.ScheduledTask) (string, error) {
	switch task.Kind {
	case types.TaskKindCommand:
		if s.runner == nil {
			return "", errors.New("no shell configured")
		}
		res := s.runner.Execute(ctx, task.Action)
		if !res.OK() {
			msg := strings.TrimSpace(res.Stderr)
			if msg == "" {
				msg = strings.TrimSpace(res.Stdout)
			}
			return "", fmt.Errorf("exit code %d: %s", res.ExitCode, msg)
		}
		return res.Stdout, nil
	case types.TaskKindAgentObjective:
		if s.objectives == nil {
			return "", errors.New("no objective runner configured")
		}
		return s.objectives.ExecuteObjective(ctx, task.Action)
	case types.TaskKindFlow:
		if s.objectives == nil {
			return "", errors.New("no objective runner configured")
		}
		return s.objectives.ExecuteFlow(ctx, task.Action)
	}
	return "", fmt.Errorf("unknown task kind: %s", task.Kind)
}

// Summarize truncates result to n runes, marking truncation with "...".
func Summarize(result string, n int) string {
	r := []rune(result)
	if len(r) <= n {
		return result
	}
	return string(r[:n]) + "..."
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(ctx, s.stopCh, s.doneCh)
	s.log.Info("scheduler started", zap.Duration("tick", s.tickInterval), zap.Int("tasks", len(s.tasks)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
