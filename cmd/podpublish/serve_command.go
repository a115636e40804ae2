package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"podpublish/internal/logging"
	"podpublish/internal/runner"
	"podpublish/internal/trigger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook trigger endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

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

			if withSchedule {
				sched := runner.NewScheduler(asm.Runner, runner.SchedulerOptions{
					Cron:       cfg.Schedule.Cron,
					RunOnStart: cfg.Schedule.RunOnStart,
					StateDir:   cfg.Paths.StateDir,
				}, logger)
				schedDone := make(chan struct{})
				go func() {
					defer close(schedDone)
					if err := sched.Run(signalCtx); err != nil {
						logging.ErrorWithContext(logger, "scheduler stopped", "scheduler_failed", logging.Error(err))
						cancel()
					}
				}()
				defer func() {
					cancel()
					<-schedDone
				}()
			}

			return trigger.New(cfg.Trigger, asm.Runner, logger).Run(signalCtx)
		},
	}

	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "Also run the cron scheduler in this process")
	return cmd
}
