package history

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = "id, record_id, mode, status, title, episode_number, warning, error_message, diagnostic_path, started_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run                                   Run
		status                                string
		recordID, title, warning, errMsg, dgn sql.NullString
		startedRaw, finishedRaw               sql.NullString
		episode                               sql.NullInt64
	)
	if err := scanner.Scan(&run.ID, &recordID, &run.Mode, &status, &title, &episode, &warning, &errMsg, &dgn, &startedRaw, &finishedRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	run.RecordID = recordID.String
	run.Title = title.String
	run.EpisodeNumber = int(episode.Int64)
	run.Warning = warning.String
	run.ErrorMessage = errMsg.String
	run.DiagnosticPath = dgn.String
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
