package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podpublish/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent publish runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit, statuses...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Mode", "Status", "Episode", "Duration", "Detail"},
				historyRows(runs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (repeatable)")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, steps, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Run", statusInfo, run.ID, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", statusForRun(run.Status), string(run.Status), colorize))
			if run.Title != "" {
				fmt.Fprintln(out, renderStatusLine("Episode", statusInfo, run.Title, colorize))
			}
			if run.Warning != "" {
				fmt.Fprintln(out, renderStatusLine("Warning", statusWarn, run.Warning, colorize))
			}
			if run.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, run.ErrorMessage, colorize))
			}
			if run.DiagnosticPath != "" {
				fmt.Fprintln(out, renderStatusLine("Screenshot", statusInfo, run.DiagnosticPath, colorize))
			}
			if len(steps) == 0 {
				return nil
			}
			table := make([][]string, 0, len(steps))
			for _, step := range steps {
				result := "ok"
				switch {
				case !step.Succeeded && step.Fatal:
					result = "fatal"
				case !step.Succeeded:
					result = "warning"
				}
				detail := step.Matched
				if step.ErrorMessage != "" {
					detail = step.ErrorMessage
				}
				table = append(table, []string{strconv.Itoa(step.Seq), step.Name, result, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Step", "Result", "Detail"}, table,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg)
}

func parseStatuses(values []string) ([]history.Status, error) {
	var out []history.Status
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := history.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		out = append(out, status)
	}
	return out, nil
}

func historyRows(runs []history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		detail := run.Warning
		if run.ErrorMessage != "" {
			detail = run.ErrorMessage
		}
		duration := "-"
		if d := run.Duration(); d > 0 {
			duration = d.Round(time.Second).String()
		}
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Mode,
			string(run.Status),
			run.Title,
			duration,
			detail,
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusForRun(status history.Status) statusKind {
	switch status {
	case history.StatusPublished, history.StatusDraft:
		return statusOK
	case history.StatusWarning, history.StatusNeedsReview:
		return statusWarn
	case history.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}
