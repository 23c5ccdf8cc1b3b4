package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"autoclaw/pkg/autoclaw/storage"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.Cooldown = time.Hour
	cfg.TaskTimeout = time.Second
	return cfg
}

// waitIdle polls until the named task is no longer running.
func waitIdle(t *testing.T, s *Scheduler, name string) TaskStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := s.Status(name)
		if err != nil {
			t.Fatalf("Status(%q): %v", name, err)
		}
		if !st.Running && st.RunCount > 0 {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %q did not finish", name)
	return TaskStatus{}
}

func TestRegisterValidation(t *testing.T) {
	s := New(testConfig(), nil, nil)

	if err := s.Register(Task{Name: "", Action: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := s.Register(Task{Name: "noop"}); err == nil {
		t.Error("nil action should be rejected")
	}
	if err := s.Register(Task{
		Name:     "bad",
		Schedule: "not a cron expr",
		Action:   func(ctx context.Context) error { return nil },
	}); err == nil {
		t.Error("invalid cron expression should be rejected")
	}
	if err := s.Register(Task{
		Name:     "ok",
		Schedule: "*/5 * * * *",
		Enabled:  true,
		Action:   func(ctx context.Context) error { return nil },
	}); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}
	if err := s.Register(Task{
		Name:   "ok",
		Action: func(ctx context.Context) error { return nil },
	}); err == nil {
		t.Error("duplicate name should be rejected")
	}
}

func TestTickSkipsDisabledTask(t *testing.T) {
	s := New(testConfig(), nil, nil)

	var runs atomic.Int64
	err := s.Register(Task{
		Name:    "disabled",
		Enabled: false,
		Action: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
	}
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("disabled task ran %d times, want 0", got)
	}
}

func TestTickRespectsCooldown(t *testing.T) {
	s := New(testConfig(), nil, nil)

	var runs atomic.Int64
	err := s.Register(Task{
		Name:    "cooled",
		Enabled: true,
		Action: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Tick(context.Background())
	waitIdle(t, s, "cooled")

	// Cooldown is an hour in the test config; further ticks must not fire.
	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
	}
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("task ran %d times within cooldown, want 1", got)
	}
}

func TestRunNowBypassesCooldown(t *testing.T) {
	s := New(testConfig(), nil, nil)

	var runs atomic.Int64
	err := s.Register(Task{
		Name:    "manual",
		Enabled: true,
		Action: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "manual"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	waitIdle(t, s, "manual")
	if err := s.RunNow(context.Background(), "manual"); err != nil {
		t.Fatalf("second RunNow: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := runs.Load(); got != 2 {
		t.Errorf("task ran %d times, want 2", got)
	}

	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("RunNow on unknown task should fail")
	}
}

func TestTaskErrorRecorded(t *testing.T) {
	s := New(testConfig(), nil, nil)

	err := s.Register(Task{
		Name:    "failing",
		Enabled: true,
		Action: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "failing"); err != nil {
		t.Fatal(err)
	}
	st := waitIdle(t, s, "failing")
	if st.LastErr != "boom" {
		t.Errorf("LastErr = %q, want %q", st.LastErr, "boom")
	}
}

func TestPanicRecovered(t *testing.T) {
	s := New(testConfig(), nil, nil)

	err := s.Register(Task{
		Name:    "panicky",
		Enabled: true,
		Action: func(ctx context.Context) error {
			panic("kaboom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "panicky"); err != nil {
		t.Fatal(err)
	}
	st := waitIdle(t, s, "panicky")
	if st.LastErr == "" {
		t.Error("panic should be recorded as an error")
	}
}

func TestMaxConcurrentTasks(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentTasks = 1
	s := New(cfg, nil, nil)

	release := make(chan struct{})
	var active, peak atomic.Int64
	action := func(ctx context.Context) error {
		n := active.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		<-release
		active.Add(-1)
		return nil
	}

	for _, name := range []string{"a", "b", "c"} {
		if err := s.Register(Task{Name: name, Enabled: true, Action: action}); err != nil {
			t.Fatal(err)
		}
	}

	s.Tick(context.Background())
	time.Sleep(50 * time.Millisecond)
	close(release)

	for _, name := range []string{"a", "b", "c"} {
		waitIdle(t, s, name)
	}
	if got := peak.Load(); got > 1 {
		t.Errorf("peak concurrency %d, want at most 1", got)
	}
}

func TestTaskTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TaskTimeout = 20 * time.Millisecond
	s := New(cfg, nil, nil)

	err := s.Register(Task{
		Name:    "slow",
		Enabled: true,
		Action: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "slow"); err != nil {
		t.Fatal(err)
	}
	st := waitIdle(t, s, "slow")
	if st.LastErr == "" {
		t.Error("timed-out task should record an error")
	}
}

func TestEnableDisable(t *testing.T) {
	s := New(testConfig(), nil, nil)

	err := s.Register(Task{
		Name:    "toggle",
		Enabled: true,
		Action:  func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetEnabled("toggle", false); err != nil {
		t.Fatal(err)
	}
	st, err := s.Status("toggle")
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled {
		t.Error("task should be disabled")
	}
	if err := s.SetEnabled("missing", true); err == nil {
		t.Error("SetEnabled on unknown task should fail")
	}
}

func TestNextRunFromSchedule(t *testing.T) {
	s := New(testConfig(), nil, nil)

	err := s.Register(Task{
		Name:     "hourly",
		Schedule: "0 * * * *",
		Enabled:  true,
		Action:   func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	st, err := s.Status("hourly")
	if err != nil {
		t.Fatal(err)
	}
	if st.NextRun.IsZero() || !st.NextRun.After(time.Now()) {
		t.Errorf("NextRun = %v, want a future time", st.NextRun)
	}
}

func TestStartStop(t *testing.T) {
	s := New(testConfig(), nil, nil)

	var runs atomic.Int64
	err := s.Register(Task{
		Name:    "looped",
		Enabled: true,
		Action: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if s.Running() {
		t.Error("scheduler should be stopped")
	}
	if runs.Load() == 0 {
		t.Error("task never ran while scheduler was active")
	}
}

func TestSQLiteStoragePersistence(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	store := NewSQLiteStorage(db)

	s := New(testConfig(), store, nil)
	err = s.Register(Task{
		Name:    "persisted",
		Enabled: true,
		Action:  func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(context.Background(), "persisted"); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, s, "persisted")
	if err := s.SetEnabled("persisted", false); err != nil {
		t.Fatal(err)
	}

	// New scheduler, same storage: state comes back.
	s2 := New(testConfig(), store, nil)
	err = s2.Register(Task{
		Name:    "persisted",
		Enabled: true,
		Action:  func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s2.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	st, err := s2.Status("persisted")
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled {
		t.Error("restored task should be disabled")
	}
	if st.RunCount != 1 {
		t.Errorf("restored RunCount = %d, want 1", st.RunCount)
	}
	if st.LastRun.IsZero() {
		t.Error("restored LastRun should be set")
	}
}
