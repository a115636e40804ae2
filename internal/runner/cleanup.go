package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"podpublish/internal/config"
	"podpublish/internal/logging"
)

// HistoryPruner deletes run history older than a cutoff.
type HistoryPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupOptions selects what the cleanup mode removes.
type CleanupOptions struct {
	TempDir        string
	DiagnosticsDir string
	LogDir         string
	// MaxAge applies to temp downloads and diagnostics screenshots.
	MaxAge time.Duration
	// RetentionDays applies to rotated logs and run history. Zero keeps both.
	RetentionDays int
	History       HistoryPruner
	Now           func() time.Time
}

// CleanupOptionsFromConfig maps config to cleanup options.
func CleanupOptionsFromConfig(cfg *config.Config, history HistoryPruner) CleanupOptions {
	return CleanupOptions{
		TempDir:        cfg.Paths.TempDir,
		DiagnosticsDir: cfg.Paths.DiagnosticsDir,
		LogDir:         cfg.Paths.LogDir,
		MaxAge:         time.Duration(cfg.Cleanup.MaxAgeHours) * time.Hour,
		RetentionDays:  cfg.Logging.RetentionDays,
		History:        history,
	}
}

// CleanupReport counts what a cleanup pass removed.
type CleanupReport struct {
	TempRemoved        int
	DiagnosticsRemoved int
	LogsRemoved        int
	RunsPruned         int64
}

// Cleanup removes stale downloads, screenshots, logs and history rows.
// Failures on individual entries are collected; the pass always completes.
func Cleanup(ctx context.Context, opts CleanupOptions, logger *slog.Logger) (CleanupReport, error) {
	logger = logging.NewComponentLogger(logger, "cleanup")
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	var (
		report CleanupReport
		errs   []error
	)

	if opts.MaxAge > 0 {
		cutoff := now.Add(-opts.MaxAge)
		n, err := removeOlder(opts.TempDir, "*", cutoff)
		report.TempRemoved = n
		errs = append(errs, err)
		n, err = removeOlder(opts.DiagnosticsDir, "*.png", cutoff)
		report.DiagnosticsRemoved = n
		errs = append(errs, err)
	}

	if opts.LogDir != "" {
		report.LogsRemoved = logging.CleanupOldLogs(logger, opts.RetentionDays, now, logging.RetentionTarget{
			Dir:     opts.LogDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(opts.LogDir, logging.LogFileName)},
		})
	}

	if opts.History != nil && opts.RetentionDays > 0 {
		n, err := opts.History.Prune(ctx, now.AddDate(0, 0, -opts.RetentionDays))
		if err != nil {
			errs = append(errs, fmt.Errorf("prune history: %w", err))
		}
		report.RunsPruned = n
	}

	logger.Info("cleanup complete",
		logging.String(logging.FieldEventType, "cleanup_complete"),
		logging.Int("temp_removed", report.TempRemoved),
		logging.Int("diagnostics_removed", report.DiagnosticsRemoved),
		logging.Int("logs_removed", report.LogsRemoved),
		logging.Int64("runs_pruned", report.RunsPruned),
	)
	return report, errors.Join(errs...)
}

// removeOlder deletes top-level entries in dir matching pattern whose
// modification time is before cutoff. A missing dir is not an error.
func removeOlder(dir, pattern string, cutoff time.Time) (int, error) {
	if dir == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", dir, err)
	}
	removed := 0
	var errs []error
	for _, path := range matches {
		info, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
