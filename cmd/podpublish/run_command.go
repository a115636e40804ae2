package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"podpublish/internal/history"
	"podpublish/internal/logging"
	"podpublish/internal/runner"
)

// runModeEnv selects the mode when no argument is given.
const runModeEnv = "RUN_MODE"

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:       "run [once|test|scheduled|cleanup]",
		Short:     "Publish the newest episode, or run the scheduler or cleanup",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(runner.ModeOnce), string(runner.ModeTest), string(runner.ModeScheduled), string(runner.ModeCleanup)},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := os.Getenv(runModeEnv)
			if len(args) == 1 {
				raw = args[0]
			}
			mode, err := runner.ParseMode(raw)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			switch mode {
			case runner.ModeCleanup:
				return runCleanup(signalCtx, ctx, cmd.OutOrStdout())
			case runner.ModeScheduled:
				return runScheduled(signalCtx, ctx)
			default:
				return runOnce(signalCtx, ctx, cmd.OutOrStdout(), runner.RunOptions{Mode: mode, Force: force})
			}
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Publish even if the record was already published")
	return cmd
}

func runOnce(signalCtx context.Context, ctx *commandContext, out io.Writer, opts runner.RunOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	asm, err := runner.Build(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer asm.Close()

	outcome := asm.Runner.RunOnce(signalCtx, opts)
	printOutcome(out, outcome, shouldColorize(out))
	if outcome.Fatal() {
		return fmt.Errorf("run %s failed: %s", outcome.RunID, outcome.Message)
	}
	return nil
}

func runScheduled(signalCtx context.Context, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	asm, err := runner.Build(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer asm.Close()

	sched := runner.NewScheduler(asm.Runner, runner.SchedulerOptions{
		Cron:       cfg.Schedule.Cron,
		RunOnStart: cfg.Schedule.RunOnStart,
		StateDir:   cfg.Paths.StateDir,
	}, logger)
	return sched.Run(signalCtx)
}

func runCleanup(signalCtx context.Context, ctx *commandContext, out io.Writer) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable; run rows will not be pruned", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history is left as is"),
		)
	}
	opts := runner.CleanupOptionsFromConfig(cfg, nil)
	if store != nil {
		defer store.Close()
		opts.History = store
	}
	report, cleanErr := runner.Cleanup(signalCtx, opts, logger)
	fmt.Fprintf(out, "Removed %d temp entries, %d screenshots, %d logs; pruned %d runs\n",
		report.TempRemoved, report.DiagnosticsRemoved, report.LogsRemoved, report.RunsPruned)
	return cleanErr
}

func printOutcome(out io.Writer, outcome runner.Outcome, colorize bool) {
	kind := statusOK
	switch {
	case outcome.Fatal():
		kind = statusError
	case outcome.Kind == runner.OutcomeSuccessWithWarning:
		kind = statusWarn
	case outcome.Skipped:
		kind = statusInfo
	}
	fmt.Fprintln(out, renderStatusLine("Outcome", kind, string(outcome.Kind), colorize))
	if outcome.Title != "" {
		fmt.Fprintln(out, renderStatusLine("Episode", statusInfo, outcome.Title, colorize))
	}
	if msg := strings.TrimSpace(outcome.Message); msg != "" {
		fmt.Fprintln(out, renderStatusLine("Detail", kind, msg, colorize))
	}
	if outcome.DiagnosticPath != "" {
		fmt.Fprintln(out, renderStatusLine("Screenshot", statusInfo, outcome.DiagnosticPath, colorize))
	}
	if outcome.RunID != "" {
		fmt.Fprintln(out, renderStatusLine("Run ID", statusInfo, outcome.RunID, colorize))
	}
}
