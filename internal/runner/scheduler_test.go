package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"podpublish/internal/logging"
)

type countingRunner struct {
	mu    sync.Mutex
	modes []Mode
	fired chan struct{}
}

func (c *countingRunner) RunOnce(_ context.Context, opts RunOptions) Outcome {
	c.mu.Lock()
	c.modes = append(c.modes, opts.Mode)
	c.mu.Unlock()
	select {
	case c.fired <- struct{}{}:
	default:
	}
	return Outcome{Kind: OutcomeSuccess}
}

func TestSchedulerRunsOnStartAndStops(t *testing.T) {
	runner := &countingRunner{fired: make(chan struct{}, 1)}
	sched := NewScheduler(runner, SchedulerOptions{Cron: "@every 1h", RunOnStart: true, StateDir: t.TempDir()}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case <-runner.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("run on start did not fire")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.modes) != 1 || runner.modes[0] != ModeScheduled {
		t.Fatalf("modes = %v, want one scheduled run", runner.modes)
	}
}

// blockingRunner holds every run until release is closed.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) RunOnce(context.Context, RunOptions) Outcome {
	b.started <- struct{}{}
	<-b.release
	return Outcome{Kind: OutcomeSuccess}
}

func TestSchedulerWaitsForStartupRunBeforeUnlocking(t *testing.T) {
	dir := t.TempDir()
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	sched := NewScheduler(runner, SchedulerOptions{Cron: "@every 1h", RunOnStart: true, StateDir: dir}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run on start did not fire")
	}
	cancel()

	select {
	case err := <-done:
		t.Fatalf("Run returned %v while the startup run was in flight", err)
	case <-time.After(100 * time.Millisecond):
	}
	other := flock.New(filepath.Join(dir, SchedulerLockName))
	if ok, err := other.TryLock(); err != nil || ok {
		if ok {
			_ = other.Unlock()
		}
		t.Fatalf("scheduler lock released early (ok=%v err=%v)", ok, err)
	}

	close(runner.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after the run finished")
	}
}

func TestSchedulerRejectsSecondInstance(t *testing.T) {
	dir := t.TempDir()
	runner := &countingRunner{fired: make(chan struct{}, 1)}
	first := NewScheduler(runner, SchedulerOptions{Cron: "@every 1h", RunOnStart: true, StateDir: dir}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	select {
	case <-runner.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("first scheduler did not start")
	}

	second := NewScheduler(runner, SchedulerOptions{Cron: "@every 1h", StateDir: dir}, logging.NewNop())
	secondCtx, secondCancel := context.WithTimeout(context.Background(), time.Second)
	defer secondCancel()
	if err := second.Run(secondCtx); err == nil {
		t.Fatal("second scheduler acquired the lock")
	}
}

func TestSchedulerInvalidCron(t *testing.T) {
	sched := NewScheduler(&countingRunner{}, SchedulerOptions{Cron: "not a cron", StateDir: t.TempDir()}, logging.NewNop())
	if err := sched.Run(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron")
	}
}
