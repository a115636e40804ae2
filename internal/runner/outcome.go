package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"podpublish/internal/logging"
	"podpublish/internal/publish"
	"podpublish/internal/services/airtable"
)

// OutcomeKind classifies a finished run.
type OutcomeKind string

const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeSuccessWithWarning OutcomeKind = "success_with_warning"
	OutcomeFatal              OutcomeKind = "fatal"
)

// Outcome is the result of one run as reported to the caller.
type Outcome struct {
	Kind           OutcomeKind
	Message        string
	DiagnosticPath string
	RunID          string
	RecordID       string
	Title          string
	// Skipped marks a run that found nothing new to publish.
	Skipped bool
	Err     error
}

// Fatal reports whether the run failed.
func (o Outcome) Fatal() bool {
	return o.Kind == OutcomeFatal
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	if o.Fatal() {
		return 1
	}
	return 0
}

func outcomeFromResult(res publish.Result) Outcome {
	switch {
	case !res.Success:
		msg := "publish failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		return Outcome{Kind: OutcomeFatal, Message: msg, DiagnosticPath: res.DiagnosticPath, Title: res.Title, Err: res.Err}
	case res.Warning != "":
		return Outcome{Kind: OutcomeSuccessWithWarning, Message: res.Warning, DiagnosticPath: res.DiagnosticPath, Title: res.Title}
	case res.Draft:
		return Outcome{Kind: OutcomeSuccess, Message: "draft saved", Title: res.Title}
	default:
		return Outcome{Kind: OutcomeSuccess, Message: "published", Title: res.Title}
	}
}

// EpisodeSource yields the newest record awaiting publication.
type EpisodeSource interface {
	LatestEpisode(ctx context.Context) (*airtable.Episode, error)
}

// StatusSink records the final state of a record.
type StatusSink interface {
	MarkPublished(ctx context.Context, recordID string, meta publish.Metadata) error
	MarkFailed(ctx context.Context, recordID string, cause error) error
}

// MultiSink fans out to every sink. Errors are logged and swallowed so one
// unreachable store never hides the run outcome.
type MultiSink struct {
	Sinks  []StatusSink
	Logger *slog.Logger
}

// MarkPublished forwards to every sink and always returns nil.
func (m MultiSink) MarkPublished(ctx context.Context, recordID string, meta publish.Metadata) error {
	for _, sink := range m.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.MarkPublished(ctx, recordID, meta); err != nil {
			m.warn(ctx, sink, "mark published", err)
		}
	}
	return nil
}

// MarkFailed forwards to every sink and always returns nil.
func (m MultiSink) MarkFailed(ctx context.Context, recordID string, cause error) error {
	for _, sink := range m.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.MarkFailed(ctx, recordID, cause); err != nil {
			m.warn(ctx, sink, "mark failed", err)
		}
	}
	return nil
}

func (m MultiSink) warn(ctx context.Context, sink StatusSink, op string, err error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(m.Logger, "status"))
	logging.WarnWithContext(logger, "status update failed", "status_sink_failed",
		logging.String("sink", sinkName(sink)),
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the tracking store credentials and record fields"),
		logging.String(logging.FieldImpact, "record status must be updated by hand"),
	)
}

func sinkName(sink StatusSink) string {
	name := fmt.Sprintf("%T", sink)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return strings.ToLower(name[:idx])
	}
	return name
}
