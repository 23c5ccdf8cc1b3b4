// Package scheduler runs the agent's recurring automation tasks.
//
// Timing is cooldown based: a tick loop wakes on a fixed interval and
// runs every enabled task whose cooldown has elapsed. A task's cron
// expression is validated and used to display the nominal next run,
// but the tick loop alone decides when tasks fire.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Action is the work a task performs.
type Action func(ctx context.Context) error

// Task is one registered automation task.
type Task struct {
	ID          string
	Name        string
	Description string
	// Schedule is a cron expression kept for display; see the package
	// comment for how timing actually works.
	Schedule string
	Enabled  bool
	// Cooldown overrides the scheduler-wide cooldown when positive.
	Cooldown time.Duration
	Action   Action

	LastRun  time.Time
	LastErr  string
	RunCount int64
	running  bool
}

// TaskStatus is a read-only view of a task.
type TaskStatus struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	Enabled     bool      `json:"enabled"`
	Running     bool      `json:"running"`
	LastRun     time.Time `json:"last_run"`
	LastErr     string    `json:"last_error,omitempty"`
	RunCount    int64     `json:"run_count"`
	NextRun     time.Time `json:"next_run"`
}

// TaskStorage persists task state across restarts.
type TaskStorage interface {
	SaveTask(t *Task) error
	LoadTasks() (map[string]PersistedTask, error)
	DeleteTask(id string) error
}

// PersistedTask is the stored subset of a task.
type PersistedTask struct {
	ID       string
	Name     string
	Enabled  bool
	LastRun  time.Time
	LastErr  string
	RunCount int64
}

// Config configures the scheduler.
type Config struct {
	TickInterval       time.Duration
	Cooldown           time.Duration
	TaskTimeout        time.Duration
	MaxConcurrentTasks int
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Minute,
		Cooldown:           5 * time.Minute,
		TaskTimeout:        5 * time.Minute,
		MaxConcurrentTasks: 3,
	}
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler owns the task registry and the tick loop.
type Scheduler struct {
	cfg     Config
	storage TaskStorage
	logger  *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*Task // keyed by name
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a scheduler. storage may be nil; state then lives only
// in memory.
func New(cfg Config, storage TaskStorage, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 3
	}
	return &Scheduler{
		cfg:     cfg,
		storage: storage,
		logger:  logger.With("component", "scheduler"),
		tasks:   make(map[string]*Task),
		sem:     make(chan struct{}, cfg.MaxConcurrentTasks),
	}
}

// Register adds a task. The cron expression is validated up front.
// Persisted state for the same task name is restored on top of the
// registration defaults.
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Action == nil {
		return fmt.Errorf("task %q has no action", t.Name)
	}
	if t.Schedule != "" {
		if _, err := cronParser.Parse(t.Schedule); err != nil {
			return fmt.Errorf("task %q: invalid schedule %q: %w", t.Name, t.Schedule, err)
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.Name]; exists {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	s.tasks[t.Name] = &t

	// Persisting waits for the first state change; Restore reattaches
	// the stored row by name on startup.
	s.logger.Info("task registered", "task", t.Name, "schedule", t.Schedule, "enabled", t.Enabled)
	return nil
}

// Restore overlays persisted state onto registered tasks. Call after
// all Register calls, before Start.
func (s *Scheduler) Restore() error {
	if s.storage == nil {
		return nil
	}
	persisted, err := s.storage.LoadTasks()
	if err != nil {
		return fmt.Errorf("load task state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.tasks {
		p, ok := persisted[name]
		if !ok {
			continue
		}
		t.ID = p.ID
		t.Enabled = p.Enabled
		t.LastRun = p.LastRun
		t.LastErr = p.LastErr
		t.RunCount = p.RunCount
	}
	return nil
}

// Unregister removes a task by name.
func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q not found", name)
	}
	if s.storage != nil {
		if err := s.storage.DeleteTask(t.ID); err != nil {
			s.logger.Error("failed to delete persisted task", "task", name, "error", err)
		}
	}
	return nil
}

// SetEnabled toggles a task.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		t.Enabled = enabled
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q not found", name)
	}
	s.persist(name)
	s.logger.Info("task toggled", "task", name, "enabled", enabled)
	return nil
}

// Tasks returns status for every registered task, sorted by name.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, statusOf(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status returns one task's status.
func (s *Scheduler) Status(name string) (TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return TaskStatus{}, fmt.Errorf("task %q not found", name)
	}
	return statusOf(t), nil
}

func statusOf(t *Task) TaskStatus {
	st := TaskStatus{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Schedule:    t.Schedule,
		Enabled:     t.Enabled,
		Running:     t.running,
		LastRun:     t.LastRun,
		LastErr:     t.LastErr,
		RunCount:    t.RunCount,
	}
	if t.Schedule != "" {
		if sched, err := cronParser.Parse(t.Schedule); err == nil {
			st.NextRun = sched.Next(time.Now())
		}
	}
	return st
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
	s.logger.Info("scheduler started",
		"tick", s.cfg.TickInterval,
		"cooldown", s.cfg.Cooldown,
		"max_concurrent", s.cfg.MaxConcurrentTasks,
	)
	return nil
}

// Stop halts the loop and waits for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every eligible task: enabled, not already running, and
// past its cooldown. The loop calls it each interval; tests call it
// directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*Task
	for _, t := range s.tasks {
		if !t.Enabled || t.running {
			continue
		}
		cooldown := t.Cooldown
		if cooldown <= 0 {
			cooldown = s.cfg.Cooldown
		}
		if !t.LastRun.IsZero() && now.Sub(t.LastRun) < cooldown {
			continue
		}
		t.running = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.dispatch(ctx, t)
	}
}

// RunNow triggers a task immediately, bypassing its cooldown. It still
// refuses a task that is already running and still takes a concurrency
// slot.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %q not found", name)
	}
	if t.running {
		s.mu.Unlock()
		return fmt.Errorf("task %q is already running", name)
	}
	t.running = true
	s.mu.Unlock()

	s.dispatch(ctx, t)
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, t *Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			s.mu.Lock()
			t.running = false
			s.mu.Unlock()
			return
		}

		s.execute(ctx, t)
	}()
}

func (s *Scheduler) execute(ctx context.Context, t *Task) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := s.runWithRecovery(runCtx, t)

	s.mu.Lock()
	t.running = false
	t.LastRun = start
	t.RunCount++
	if err != nil {
		t.LastErr = err.Error()
	} else {
		t.LastErr = ""
	}
	name := t.Name
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("task failed", "task", name, "error", err, "duration", time.Since(start))
	} else {
		s.logger.Info("task completed", "task", name, "duration", time.Since(start))
	}
	s.persist(name)
}

func (s *Scheduler) runWithRecovery(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return t.Action(ctx)
}

func (s *Scheduler) persist(name string) {
	if s.storage == nil {
		return
	}
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		cp := *t
		t = &cp
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.storage.SaveTask(t); err != nil {
		s.logger.Error("failed to persist task", "task", name, "error", err)
	}
}
