package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"podpublish/internal/config"
	"podpublish/internal/publish"
	"podpublish/internal/services"
	"podpublish/internal/ui"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump it when schema.sql
// changes; existing databases must then be deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Store is the SQLite run history.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens the history database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens or creates the database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// BeginRun inserts a running row.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("begin run: id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, record_id, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, nullableString(run.RecordID), run.Mode, StatusRunning, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SetRecord attaches the tracking record once it is known.
func (s *Store) SetRecord(ctx context.Context, runID, recordID string) error {
	return s.exec(ctx, "set record", runID, `UPDATE runs SET record_id = ? WHERE id = ?`, nullableString(recordID), runID)
}

// RecordSteps replaces the stored steps of a run.
func (s *Store) RecordSteps(ctx context.Context, runID string, steps []ui.StepResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin steps tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	for i, step := range steps {
		attempted, err := json.Marshal(step.Attempted)
		if err != nil {
			return fmt.Errorf("encode attempted selectors: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO steps (run_id, seq, name, succeeded, fatal, matched, attempted, error_message, diagnostic_path)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, step.StepName, boolToInt(step.Succeeded), boolToInt(step.IsFatal),
			nullableString(step.Matched), string(attempted), nullableString(step.ErrorMessage()), nullableString(step.DiagnosticPath),
		)
		if err != nil {
			return fmt.Errorf("insert step %s: %w", step.StepName, err)
		}
	}
	return tx.Commit()
}

// MarkPublished finalizes the run named by meta.RunID, or by the run ID in
// ctx when meta has none.
func (s *Store) MarkPublished(ctx context.Context, recordID string, meta publish.Metadata) error {
	runID := meta.RunID
	if runID == "" {
		runID, _ = services.RunIDFromContext(ctx)
	}
	status := StatusPublished
	switch {
	case meta.Draft:
		status = StatusDraft
	case meta.Warning != "":
		status = StatusWarning
	}
	at := meta.CompletedAt
	if at.IsZero() {
		at = s.now()
	}
	return s.exec(ctx, "mark published", runID,
		`UPDATE runs SET record_id = COALESCE(?, record_id), status = ?, title = ?, episode_number = ?, warning = ?,
             diagnostic_path = ?, finished_at = ? WHERE id = ?`,
		nullableString(recordID), status, nullableString(meta.Title), nullableInt(meta.EpisodeNumber),
		nullableString(meta.Warning), nullableString(meta.DiagnosticPath), formatTime(at), runID,
	)
}

// MarkFailed finalizes the run in ctx as failed or needs_review, depending
// on the error class.
func (s *Store) MarkFailed(ctx context.Context, recordID string, cause error) error {
	runID, _ := services.RunIDFromContext(ctx)
	status := StatusFailed
	if services.FailureOutcome(cause) == services.OutcomeNeedsReview {
		status = StatusNeedsReview
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.exec(ctx, "mark failed", runID,
		`UPDATE runs SET record_id = COALESCE(?, record_id), status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		nullableString(recordID), status, nullableString(message), formatTime(s.now()), runID,
	)
}

// MarkSkipped finalizes the run in ctx without publishing, keeping reason
// in the warning column.
func (s *Store) MarkSkipped(ctx context.Context, recordID, reason string) error {
	runID, _ := services.RunIDFromContext(ctx)
	return s.exec(ctx, "mark skipped", runID,
		`UPDATE runs SET record_id = COALESCE(?, record_id), status = ?, warning = ?, finished_at = ? WHERE id = ?`,
		nullableString(recordID), StatusSkipped, nullableString(reason), formatTime(s.now()), runID,
	)
}

// SetDiagnostic stores the failure screenshot path on a run.
func (s *Store) SetDiagnostic(ctx context.Context, runID, path string) error {
	return s.exec(ctx, "set diagnostic", runID, `UPDATE runs SET diagnostic_path = ? WHERE id = ?`, nullableString(path), runID)
}

// AlreadyPublished reports whether any run published recordID.
func (s *Store) AlreadyPublished(ctx context.Context, recordID string) (bool, error) {
	if strings.TrimSpace(recordID) == "" {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM runs WHERE record_id = ? AND status IN (?, ?)`,
		recordID, StatusPublished, StatusWarning,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query published runs: %w", err)
	}
	return count > 0, nil
}

// List returns the newest runs first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Get returns one run and its steps.
func (s *Store) Get(ctx context.Context, runID string) (*Run, []Step, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, name, succeeded, fatal, matched, attempted, error_message, diagnostic_path
         FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()
	var steps []Step
	for rows.Next() {
		var (
			step                            Step
			succeeded, fatal                int
			matched, attempted, errMsg, dgn sql.NullString
		)
		if err := rows.Scan(&step.Seq, &step.Name, &succeeded, &fatal, &matched, &attempted, &errMsg, &dgn); err != nil {
			return nil, nil, fmt.Errorf("scan step: %w", err)
		}
		step.Succeeded = succeeded != 0
		step.Fatal = fatal != 0
		step.Matched = matched.String
		step.ErrorMessage = errMsg.String
		step.DiagnosticPath = dgn.String
		if attempted.Valid && attempted.String != "" {
			_ = json.Unmarshal([]byte(attempted.String), &step.Attempted)
		}
		steps = append(steps, step)
	}
	return run, steps, rows.Err()
}

// Prune deletes finished runs that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ? AND status != ?`, formatTime(cutoff), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// AbandonRunning marks rows left running by a crashed process as failed.
func (s *Store) AbandonRunning(ctx context.Context, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE status = ?`,
		StatusFailed, reason, formatTime(s.now()), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("abandon running: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) exec(ctx context.Context, op, runID, query string, args ...any) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("%s: run id required", op)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrRunNotFound, runID)
	}
	return nil
}
