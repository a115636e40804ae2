package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"podpublish/internal/logging"
	"podpublish/internal/services"
)

// SchedulerLockName is created in the state directory while a scheduler runs.
const SchedulerLockName = "scheduler.lock"

// OnceRunner is what the scheduler and trigger server drive.
type OnceRunner interface {
	RunOnce(ctx context.Context, opts RunOptions) Outcome
}

// SchedulerOptions configures Scheduler.
type SchedulerOptions struct {
	// Cron is a standard five-field expression or a descriptor such as
	// "@every 1h".
	Cron       string
	RunOnStart bool
	StateDir   string
}

// Scheduler fires runs on a cron schedule. Runs never overlap: a tick that
// arrives while a run is in progress is skipped.
type Scheduler struct {
	runner OnceRunner
	opts   SchedulerOptions
	logger *slog.Logger
}

// NewScheduler constructs a scheduler.
func NewScheduler(runner OnceRunner, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, opts: opts, logger: logging.NewComponentLogger(logger, "scheduler")}
}

// Run blocks until ctx is cancelled, then waits for an in-flight run to
// finish. Only one scheduler per state directory may run.
func (s *Scheduler) Run(ctx context.Context) error {
	schedule, err := cron.ParseStandard(s.opts.Cron)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "scheduler", "parse cron", s.opts.Cron, err)
	}
	if err := os.MkdirAll(s.opts.StateDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "scheduler", "state dir", "", err)
	}
	lockPath := filepath.Join(s.opts.StateDir, SchedulerLockName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !ok {
		return errors.New("another podpublish scheduler is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release scheduler lock", logging.Error(err))
		}
	}()

	cronLog := cronLogger{logger: s.logger}
	job := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(func() {
		s.fire(ctx)
	}))
	c := cron.New(cron.WithLogger(cronLog))
	c.Schedule(schedule, job)
	c.Start()
	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_start"),
		logging.String("cron", s.opts.Cron),
		logging.Bool("run_on_start", s.opts.RunOnStart),
		logging.String("next_run", schedule.Next(time.Now()).Format("2006-01-02 15:04:05")),
	)
	var startup sync.WaitGroup
	if s.opts.RunOnStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			job.Run()
		}()
	}

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	startup.Wait()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stop"))
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	out := s.runner.RunOnce(ctx, RunOptions{Mode: ModeScheduled})
	s.logger.Info("scheduled run finished",
		logging.String("outcome", string(out.Kind)),
		logging.String("run_id", out.RunID),
		logging.Bool("skipped", out.Skipped),
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
