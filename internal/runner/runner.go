package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"podpublish/internal/content"
	"podpublish/internal/history"
	"podpublish/internal/logging"
	"podpublish/internal/media"
	"podpublish/internal/notifications"
	"podpublish/internal/publish"
	"podpublish/internal/services"
	"podpublish/internal/services/airtable"
	"podpublish/internal/ui"
)

// Mode selects what `run` does.
type Mode string

const (
	ModeOnce      Mode = "once"
	ModeTest      Mode = "test"
	ModeScheduled Mode = "scheduled"
	ModeCleanup   Mode = "cleanup"
)

// ParseMode validates a mode name. Empty means ModeOnce.
func ParseMode(value string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return ModeOnce, nil
	case ModeOnce, ModeTest, ModeScheduled, ModeCleanup:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want once, test, scheduled, or cleanup)", value)
	}
}

const reasonAlreadyPublished = "record already published"

// RunOptions controls a single run.
type RunOptions struct {
	Mode Mode
	// Force publishes even when history shows the record was published.
	Force bool
}

// RunRecorder is the run-history store.
type RunRecorder interface {
	StatusSink
	BeginRun(ctx context.Context, run history.Run) error
	SetRecord(ctx context.Context, runID, recordID string) error
	RecordSteps(ctx context.Context, runID string, steps []ui.StepResult) error
	AlreadyPublished(ctx context.Context, recordID string) (bool, error)
	MarkSkipped(ctx context.Context, recordID, reason string) error
}

// AudioInspector inspects downloaded audio before upload.
type AudioInspector interface {
	Available() bool
	InspectAudio(ctx context.Context, path string) (media.AudioInfo, error)
}

// Deps are the collaborators of a Runner. Source, Media, Sessions,
// Executor, and Catalog are required.
type Deps struct {
	Source    EpisodeSource
	Generator content.Generator
	Media     media.Provider
	Sessions  SessionManager
	Executor  *ui.Executor
	Catalog   ui.Catalog
	Publish   publish.Options
	Titles    publish.TitleSelector
	// Trackers receive the outcome for records that have an ID.
	Trackers  []StatusSink
	History   RunRecorder
	Notifier  notifications.Service
	Inspector AudioInspector

	CoverMinEdge int
	CoverMaxEdge int
	Now          func() time.Time
}

// Runner executes publish runs one at a time.
type Runner struct {
	deps   Deps
	sink   StatusSink
	logger *slog.Logger
	mu     sync.Mutex
}

// New constructs a Runner.
func New(deps Deps, logger *slog.Logger) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	logger = logging.NewComponentLogger(logger, "runner")
	sinks := append([]StatusSink(nil), deps.Trackers...)
	if deps.History != nil {
		sinks = append(sinks, deps.History)
	}
	return &Runner{
		deps:   deps,
		sink:   MultiSink{Sinks: sinks, Logger: logger},
		logger: logger,
	}
}

// run is the mutable state of one RunOnce call.
type run struct {
	id       string
	mode     Mode
	recordID string
	started  time.Time
	notes    []string
	files    []string
}

func (r *run) track(path string) {
	if strings.TrimSpace(path) != "" {
		r.files = append(r.files, path)
	}
}

// RunOnce publishes the newest tracking record. Concurrent calls are
// serialized.
func (r *Runner) RunOnce(ctx context.Context, opts RunOptions) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.Mode == "" {
		opts.Mode = ModeOnce
	}
	state := &run{id: uuid.NewString(), mode: opts.Mode, started: r.deps.Now()}
	ctx = services.WithRunID(ctx, state.id)
	ctx = services.WithMode(ctx, string(state.mode))
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Bool("force", opts.Force),
	)
	r.beginRun(ctx, state)
	defer r.removeFiles(ctx, state)

	ep, err := r.latestEpisode(ctx)
	if err != nil {
		return r.fail(ctx, state, err, "", "")
	}
	state.recordID = ep.ID
	ctx = services.WithRecordID(ctx, ep.ID)
	r.setRecord(ctx, state)

	if !opts.Force && r.alreadyPublished(ctx, ep.ID) {
		return r.skip(ctx, state, reasonAlreadyPublished)
	}

	draft, err := r.buildDraft(ctx, state, ep)
	if err != nil {
		return r.fail(ctx, state, err, "", "")
	}

	res, err := r.publish(ctx, draft, state.mode == ModeTest)
	if err != nil {
		return r.fail(ctx, state, err, "", "")
	}
	r.recordSteps(ctx, state, res.Steps)
	if !res.Success {
		return r.fail(ctx, state, res.Err, res.DiagnosticPath, failedStep(res.Steps))
	}
	res.Warning = joinNotes(res.Warning, state.notes)
	return r.succeed(ctx, state, res)
}

func (r *Runner) latestEpisode(ctx context.Context) (*airtable.Episode, error) {
	if r.deps.Source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "source", "no episode source configured", nil)
	}
	ep, err := r.deps.Source.LatestEpisode(ctx)
	if err != nil {
		return nil, err
	}
	if ep == nil || strings.TrimSpace(ep.ID) == "" {
		return nil, services.Wrap(services.ErrNotFound, "runner", "source", "no episode record returned", nil)
	}
	return ep, nil
}

// buildDraft gathers content and media. A missing audio file is fatal; a
// missing or unusable cover only adds a note.
func (r *Runner) buildDraft(ctx context.Context, state *run, ep *airtable.Episode) (*publish.EpisodeDraft, error) {
	logger := logging.WithContext(ctx, r.logger)
	generated, err := content.GenerateOrFallback(ctx, r.deps.Generator, ep.Summary(), r.deps.Now(), r.logger)
	if err != nil {
		return nil, err
	}
	if r.deps.Media == nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "media", "no media provider configured", nil)
	}

	audio, err := r.deps.Media.FetchLatestAudio(ctx)
	if err != nil {
		return nil, err
	}
	state.track(audio)
	if err := r.inspectAudio(ctx, audio); err != nil {
		return nil, err
	}

	cover := r.fetchCover(ctx, state)

	draft := &publish.EpisodeDraft{
		RecordID:         ep.ID,
		TitleCandidates:  append([]string(nil), generated.TitleCandidates...),
		RecommendedIndex: generated.RecommendedIndex,
		Description:      generated.Description,
		AudioFilePath:    audio,
		CoverFilePath:    cover,
		EpisodeNumber:    ep.EpisodeNumber,
	}
	logger.Info("episode draft ready",
		logging.Int("candidates", len(draft.TitleCandidates)),
		logging.Bool("fallback_content", generated.Fallback),
		logging.Bool("has_cover", cover != ""),
		logging.String("audio_path", audio),
	)
	return draft, nil
}

func (r *Runner) inspectAudio(ctx context.Context, path string) error {
	if r.deps.Inspector == nil || !r.deps.Inspector.Available() {
		return nil
	}
	logger := logging.WithContext(ctx, r.logger)
	info, err := r.deps.Inspector.InspectAudio(ctx, path)
	if errors.Is(err, media.ErrNoAudioStream) {
		return services.Wrap(services.ErrValidation, "runner", "inspect audio", "downloaded audio has no audio stream", err)
	}
	if err != nil {
		logging.WarnWithContext(logger, "audio inspection failed", "audio_inspect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ffprobe install"),
			logging.String(logging.FieldImpact, "audio is uploaded without inspection"),
		)
		return nil
	}
	logger.Info("audio inspected",
		logging.String("codec", info.Codec),
		logging.Int("channels", info.Channels),
		logging.Int("sample_rate", info.SampleRate),
		logging.Duration("audio_duration", info.Duration),
	)
	return nil
}

func (r *Runner) fetchCover(ctx context.Context, state *run) string {
	logger := logging.WithContext(ctx, r.logger)
	cover, err := r.deps.Media.FetchLatestCoverImage(ctx)
	if err != nil {
		state.notes = append(state.notes, "cover image not found")
		logging.WarnWithContext(logger, "cover image unavailable", "cover_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the cover folder setting"),
			logging.String(logging.FieldImpact, "episode keeps the show default cover"),
		)
		return ""
	}
	state.track(cover)

	normalized, err := media.NormalizeCover(cover, r.deps.CoverMinEdge, r.deps.CoverMaxEdge)
	if err != nil {
		logging.WarnWithContext(logger, "cover normalization failed", "cover_normalize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "upload a PNG or JPEG cover"),
			logging.String(logging.FieldImpact, "original cover file is uploaded"),
		)
		return cover
	}
	if normalized.Changed {
		state.track(normalized.Path)
		logger.Debug("cover normalized",
			logging.Int("width", normalized.Width),
			logging.Int("height", normalized.Height),
		)
	}
	return normalized.Path
}

// publish opens a session, runs the workflow, and closes the session on
// every path.
func (r *Runner) publish(ctx context.Context, draft *publish.EpisodeDraft, dryRun bool) (publish.Result, error) {
	if r.deps.Sessions == nil || r.deps.Executor == nil {
		return publish.Result{}, services.Wrap(services.ErrConfiguration, "runner", "publish", "browser session not configured", nil)
	}
	logger := logging.WithContext(ctx, r.logger)
	page, err := r.deps.Sessions.Open(ctx)
	if err != nil {
		return publish.Result{}, err
	}
	defer func() {
		if err := r.deps.Sessions.Close(page); err != nil {
			logger.Debug("session close reported an error", logging.Error(err))
		}
	}()

	opts := r.deps.Publish
	opts.DryRun = dryRun
	workflow := publish.NewWorkflow(r.deps.Executor, r.deps.Catalog, opts, r.deps.Titles, r.logger)
	return workflow.Run(ctx, page, draft), nil
}

func (r *Runner) succeed(ctx context.Context, state *run, res publish.Result) Outcome {
	logger := logging.WithContext(ctx, r.logger)
	out := outcomeFromResult(res)
	out.RunID = state.id
	out.RecordID = state.recordID

	meta := publish.MetadataFromResult(state.id, res, r.deps.Now())
	_ = r.sink.MarkPublished(ctx, state.recordID, meta)

	event := notifications.EventPublished
	switch {
	case res.Draft:
		event = notifications.EventDraftSaved
	case res.Warning != "":
		event = notifications.EventPublishedWarning
	}
	r.notify(ctx, event, notifications.Payload{
		"title":   res.Title,
		"warning": res.Warning,
		"episode": res.EpisodeNumber,
	})

	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("outcome", string(out.Kind)),
		logging.String("title", res.Title),
		logging.Int("episode_number", res.EpisodeNumber),
		logging.Bool("draft", res.Draft),
		logging.String("warnings", res.Warning),
		logging.Duration("run_duration", r.deps.Now().Sub(state.started)),
	)
	return out
}

func (r *Runner) fail(ctx context.Context, state *run, cause error, diagnostic, step string) Outcome {
	if cause == nil {
		cause = errors.New("run failed without error detail")
	}
	logger := logging.WithContext(ctx, r.logger)
	attrs := []logging.Attr{
		logging.Error(cause),
		logging.String("outcome_class", string(services.FailureOutcome(cause))),
		logging.String(logging.FieldErrorHint, failureHint(cause)),
		logging.String(logging.FieldImpact, "episode was not published"),
		logging.Duration("run_duration", r.deps.Now().Sub(state.started)),
	}
	if step != "" {
		attrs = append(attrs, logging.String("failed_step", step))
	}
	if diagnostic != "" {
		attrs = append(attrs, logging.String(logging.FieldDiagnosticPath, diagnostic))
	}
	logging.ErrorWithContext(logger, "run failed", "run_failed", attrs...)

	switch {
	case state.recordID != "":
		_ = r.sink.MarkFailed(ctx, state.recordID, cause)
	case r.deps.History != nil:
		if err := r.deps.History.MarkFailed(ctx, "", cause); err != nil {
			logger.Debug("history update failed", logging.Error(err))
		}
	}
	r.notify(ctx, notifications.EventRunFailed, notifications.Payload{
		"step":       step,
		"error":      cause,
		"diagnostic": diagnostic,
	})
	return Outcome{
		Kind:           OutcomeFatal,
		Message:        cause.Error(),
		DiagnosticPath: diagnostic,
		RunID:          state.id,
		RecordID:       state.recordID,
		Err:            cause,
	}
}

func (r *Runner) skip(ctx context.Context, state *run, reason string) Outcome {
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run skipped",
		logging.Args(append(logging.DecisionAttrs("publish_guard", "skip", reason),
			logging.String(logging.FieldEventType, "run_skipped"),
		)...)...,
	)
	if r.deps.History != nil {
		if err := r.deps.History.MarkSkipped(ctx, state.recordID, reason); err != nil {
			logger.Debug("history update failed", logging.Error(err))
		}
	}
	return Outcome{Kind: OutcomeSuccess, Message: reason, RunID: state.id, RecordID: state.recordID, Skipped: true}
}

func (r *Runner) beginRun(ctx context.Context, state *run) {
	if r.deps.History == nil {
		return
	}
	err := r.deps.History.BeginRun(ctx, history.Run{ID: state.id, Mode: string(state.mode), StartedAt: state.started})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "run history unavailable", "history_begin_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
			logging.String(logging.FieldImpact, "this run is missing from `podpublish history`"),
		)
	}
}

func (r *Runner) setRecord(ctx context.Context, state *run) {
	if r.deps.History == nil {
		return
	}
	if err := r.deps.History.SetRecord(ctx, state.id, state.recordID); err != nil {
		logging.WithContext(ctx, r.logger).Debug("history record link failed", logging.Error(err))
	}
}

func (r *Runner) alreadyPublished(ctx context.Context, recordID string) bool {
	if r.deps.History == nil {
		return false
	}
	published, err := r.deps.History.AlreadyPublished(ctx, recordID)
	if err != nil {
		logging.WithContext(ctx, r.logger).Debug("publish guard query failed", logging.Error(err))
		return false
	}
	return published
}

func (r *Runner) recordSteps(ctx context.Context, state *run, steps []ui.StepResult) {
	if r.deps.History == nil || len(steps) == 0 {
		return
	}
	if err := r.deps.History.RecordSteps(ctx, state.id, steps); err != nil {
		logging.WithContext(ctx, r.logger).Debug("history steps not recorded", logging.Error(err))
	}
}

func (r *Runner) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := r.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push notification for this run"),
		)
	}
}

// removeFiles deletes everything the run downloaded or derived.
func (r *Runner) removeFiles(ctx context.Context, state *run) {
	logger := logging.WithContext(ctx, r.logger)
	for _, path := range state.files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("temp file not removed", logging.String("path", path), logging.Error(err))
		}
	}
}

func failedStep(steps []ui.StepResult) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if !steps[i].Succeeded {
			return steps[i].StepName
		}
	}
	return ""
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrStepRequired):
		return "check the screenshot and the selector catalog"
	case errors.Is(err, services.ErrConfiguration):
		return "run `podpublish config validate`"
	case errors.Is(err, services.ErrNotFound):
		return "check the tracking table and the drive folders"
	case errors.Is(err, services.ErrTimeout):
		return "raise the timeout or check the network"
	default:
		return "run `podpublish doctor` and retry"
	}
}

func joinNotes(warning string, notes []string) string {
	parts := make([]string, 0, len(notes)+1)
	if strings.TrimSpace(warning) != "" {
		parts = append(parts, warning)
	}
	parts = append(parts, notes...)
	return strings.Join(parts, "; ")
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}
