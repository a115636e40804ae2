package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podpublish/internal/logging"
	"podpublish/internal/services"
)

const (
	defaultStepTimeout  = 30 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// Step describes one UI interaction.
type Step struct {
	Name       string
	Candidates []SelectorSpec
	Action     Action
	Timeout    time.Duration
	Required   bool
}

// StepResult reports the outcome of Executor.Perform.
type StepResult struct {
	StepName       string
	Succeeded      bool
	Err            error
	IsFatal        bool
	Attempted      []string
	Matched        string
	DiagnosticPath string
	Duration       time.Duration
}

// ErrorMessage returns the failure text, or "" on success.
func (r StepResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Retry          RetryPolicy
	Settle         time.Duration
	PollInterval   time.Duration
	DefaultTimeout time.Duration
	Diagnostics    DiagnosticHook
}

// Executor performs Steps against a Page.
type Executor struct {
	retry          RetryPolicy
	settle         time.Duration
	pollInterval   time.Duration
	defaultTimeout time.Duration
	diagnostics    DiagnosticHook
	logger         *slog.Logger
	now            func() time.Time
}

// NewExecutor constructs an executor. Zero poll interval and timeout fall
// back to package defaults.
func NewExecutor(opts ExecutorOptions, logger *slog.Logger) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultStepTimeout
	}
	return &Executor{
		retry:          opts.Retry,
		settle:         opts.Settle,
		pollInterval:   opts.PollInterval,
		defaultTimeout: opts.DefaultTimeout,
		diagnostics:    opts.Diagnostics,
		logger:         logging.NewComponentLogger(logger, "ui"),
		now:            time.Now,
	}
}

// Retry exposes the executor's retry policy so callers can reuse it for
// multi-step sequences such as login.
func (e *Executor) Retry() RetryPolicy {
	return e.retry
}

// Perform polls step.Candidates in order until one matches, then applies
// step.Action. A candidate that matches but whose action keeps failing after
// retries does not end the step; later candidates and later rounds are still
// tried until the timeout.
func (e *Executor) Perform(ctx context.Context, page Page, step Step) StepResult {
	start := e.now()
	result := StepResult{StepName: step.Name}
	logger := logging.WithContext(services.WithStep(ctx, step.Name), e.logger)

	if len(step.Candidates) == 0 {
		result.Err = services.Wrap(services.ErrValidation, "ui", step.Name, "no selector candidates", nil)
		return e.finish(ctx, page, step, result, start, logger)
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]struct{}, len(step.Candidates))
	var lastErr error
	for {
		for _, cand := range step.Candidates {
			label := cand.String()
			if _, ok := seen[label]; !ok {
				seen[label] = struct{}{}
				result.Attempted = append(result.Attempted, label)
			}

			found, err := page.Present(stepCtx, cand, step.Action.needsVisibility())
			if err != nil {
				if stepCtx.Err() != nil {
					break
				}
				lastErr = err
				continue
			}
			if !found {
				continue
			}

			err = e.retry.Do(stepCtx, func(attempt int) error {
				if attempt > 1 {
					logger.Debug("retrying ui action", logging.String("selector", label), logging.Int("attempt", attempt))
				}
				return step.Action.apply(stepCtx, page, cand)
			})
			if err != nil {
				lastErr = err
				logger.Debug("ui action failed on matched selector", logging.String("selector", label), logging.Error(err))
				continue
			}

			result.Succeeded = true
			result.Matched = label
			if e.settle > 0 {
				_ = SleepContext(ctx, e.settle)
			}
			return e.finish(ctx, page, step, result, start, logger)
		}

		if stepCtx.Err() != nil {
			break
		}
		if SleepContext(stepCtx, e.pollInterval) != nil {
			break
		}
	}

	switch {
	case ctx.Err() != nil:
		result.Err = services.Wrap(services.ErrTimeout, "ui", step.Name, "cancelled", ctx.Err())
	case lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded):
		result.Err = services.Wrap(services.ErrTimeout, "ui", step.Name,
			fmt.Sprintf("no candidate succeeded within %s", timeout), lastErr)
	default:
		result.Err = services.Wrap(services.ErrNotFound, "ui", step.Name,
			fmt.Sprintf("no candidate visible within %s", timeout), nil)
	}
	return e.finish(ctx, page, step, result, start, logger)
}

func (e *Executor) finish(ctx context.Context, page Page, step Step, result StepResult, start time.Time, logger *slog.Logger) StepResult {
	result.Duration = e.now().Sub(start)
	if result.Succeeded {
		logger.Debug("ui step succeeded",
			logging.String("selector", result.Matched),
			logging.Duration("step_duration", result.Duration),
		)
		return result
	}

	result.IsFatal = step.Required
	attrs := []logging.Attr{
		logging.Strings("candidates", result.Attempted),
		logging.String("error_message", result.ErrorMessage()),
		logging.Bool("required", step.Required),
	}
	if !result.IsFatal {
		logger.Debug("optional ui step missed", logging.Args(attrs...)...)
		return result
	}

	if path := e.capture(ctx, page, step.Name, logger); path != "" {
		result.DiagnosticPath = path
		attrs = append(attrs, logging.String(logging.FieldDiagnosticPath, path))
	}
	logging.ErrorWithContext(logger, "required ui step failed", "ui_step_failed", attrs...)
	return result
}

// Capture runs the diagnostic hook for a failure detected outside Perform,
// such as a multi-step login. It returns "" when no artifact was written.
func (e *Executor) Capture(ctx context.Context, page Page, step string) string {
	return e.capture(ctx, page, step, logging.WithContext(services.WithStep(ctx, step), e.logger))
}

func (e *Executor) capture(ctx context.Context, page Page, step string, logger *slog.Logger) string {
	if e.diagnostics == nil || ctx.Err() != nil {
		return ""
	}
	path, err := e.diagnostics.Capture(ctx, page, step)
	if err != nil {
		logging.WarnWithContext(logger, "diagnostic capture failed", "diagnostic_capture_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.diagnostics_dir permissions"),
			logging.String(logging.FieldImpact, "no screenshot for this failure"),
		)
		return ""
	}
	return path
}

// Visible performs a single non-blocking round over candidates and returns
// the first visible one.
func (e *Executor) Visible(ctx context.Context, page Page, candidates []SelectorSpec) (SelectorSpec, bool) {
	for _, cand := range candidates {
		ok, err := page.Present(ctx, cand, true)
		if err == nil && ok {
			return cand, true
		}
	}
	return SelectorSpec{}, false
}

// WaitAny polls candidates until one is visible or timeout elapses.
func (e *Executor) WaitAny(ctx context.Context, page Page, candidates []SelectorSpec, timeout time.Duration) (SelectorSpec, bool) {
	if len(candidates) == 0 {
		return SelectorSpec{}, false
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if sel, ok := e.Visible(waitCtx, page, candidates); ok {
			return sel, true
		}
		if SleepContext(waitCtx, e.pollInterval) != nil {
			return SelectorSpec{}, false
		}
	}
}
