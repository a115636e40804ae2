package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podpublish/internal/config"
	"podpublish/internal/logging"
	"podpublish/internal/services"
	"podpublish/internal/ui"
)

const defaultUploadWait = 3 * time.Minute

// Options holds the dashboard settings the workflow reads.
type Options struct {
	EpisodesURL           string
	Email                 string
	Password              string
	LoginTimeout          time.Duration
	NavigationTimeout     time.Duration
	ElementTimeout        time.Duration
	UploadWait            time.Duration
	AdOption              string
	EpisodeType           string
	TitlePrefixFormat     string
	MaxTitleRunes         int
	FallbackEpisodeNumber int
	CookiesPath           string
	// DryRun saves a draft instead of publishing.
	DryRun bool
}

// OptionsFromConfig maps configuration onto workflow options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		EpisodesURL:           cfg.Host.EpisodesURL,
		Email:                 cfg.Host.Email,
		Password:              cfg.Host.Password,
		LoginTimeout:          cfg.LoginTimeout(),
		NavigationTimeout:     cfg.NavigationTimeout(),
		ElementTimeout:        cfg.ElementTimeout(),
		UploadWait:            defaultUploadWait,
		AdOption:              cfg.Publish.AdOption,
		EpisodeType:           cfg.Publish.EpisodeType,
		TitlePrefixFormat:     cfg.Publish.TitlePrefixFormat,
		MaxTitleRunes:         cfg.Publish.MaxTitleRunes,
		FallbackEpisodeNumber: cfg.Publish.FallbackEpisodeNumber,
		CookiesPath:           cfg.CookiesPath(),
	}
}

// TitleSelector chooses one of draft.TitleCandidates and returns its index.
// The workflow calls it once, after login, with candidates already prefixed.
type TitleSelector interface {
	ChooseTitle(ctx context.Context, draft EpisodeDraft) (int, error)
}

// TitleSelectorFunc adapts a function to TitleSelector.
type TitleSelectorFunc func(ctx context.Context, draft EpisodeDraft) (int, error)

// ChooseTitle calls f.
func (f TitleSelectorFunc) ChooseTitle(ctx context.Context, draft EpisodeDraft) (int, error) {
	return f(ctx, draft)
}

// cookieSaver is implemented by pages that can persist their session.
type cookieSaver interface {
	SaveCookies(ctx context.Context, path string) (int, error)
}

// Result summarises one workflow run.
type Result struct {
	Success        bool
	Warning        string
	Err            error
	FailedOptional []string
	Steps          []ui.StepResult
	State          State
	DiagnosticPath string
	EpisodeNumber  int
	Title          string
	// Draft is set when the run saved a draft instead of publishing.
	Draft    bool
	Duration time.Duration
}

// Workflow drives one episode through the dashboard.
type Workflow struct {
	exec    *ui.Executor
	catalog ui.Catalog
	opts    Options
	titles  TitleSelector
	logger  *slog.Logger
}

// NewWorkflow constructs a workflow. titles may be nil, in which case the
// recommended candidate is used.
func NewWorkflow(exec *ui.Executor, catalog ui.Catalog, opts Options, titles TitleSelector, logger *slog.Logger) *Workflow {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 30 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = opts.ElementTimeout
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = opts.NavigationTimeout
	}
	return &Workflow{
		exec:    exec,
		catalog: catalog,
		opts:    opts,
		titles:  titles,
		logger:  logging.NewComponentLogger(logger, "publish"),
	}
}

// Run executes the publish sequence against page. It never returns early
// without a Result; inspect Result.Err for the fatal cause.
func (w *Workflow) Run(ctx context.Context, page ui.Page, draft *EpisodeDraft) Result {
	start := time.Now()
	res := Result{State: StateLoggedOut, Draft: w.opts.DryRun}
	logger := logging.WithContext(ctx, w.logger)

	if draft == nil {
		res.Err = services.Wrap(services.ErrValidation, "publish", "run", "episode draft is nil", nil)
		return w.done(ctx, res, draft, start)
	}
	logger.Info("publish workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Bool("dry_run", w.opts.DryRun),
		logging.Int("candidates", len(draft.TitleCandidates)),
	)

	if !w.step(ctx, &res, StateLoggedIn, func(c context.Context) ui.StepResult { return w.login(c, page) }) {
		return w.done(ctx, res, draft, start)
	}
	if err := w.prepareTitle(ctx, page, draft); err != nil {
		res.Err = err
		return w.done(ctx, res, draft, start)
	}

	sequence := []struct {
		state State
		run   func(context.Context) ui.StepResult
	}{
		{StateEpisodeCreated, func(c context.Context) ui.StepResult { return w.createEpisode(c, page) }},
		{StateAudioUploaded, func(c context.Context) ui.StepResult { return w.uploadAudio(c, page, draft.AudioFilePath) }},
		{StateMetadataFilled, func(c context.Context) ui.StepResult { return w.fillMetadata(c, page, draft) }},
		{StateTypeSelected, func(c context.Context) ui.StepResult { return w.selectType(c, page) }},
		{StateAdOptionsSet, func(c context.Context) ui.StepResult { return w.setAdOptions(c, page) }},
		{StateCoverUploaded, func(c context.Context) ui.StepResult { return w.uploadCover(c, page, draft.CoverFilePath) }},
		{StatePublished, func(c context.Context) ui.StepResult { return w.publish(c, page, &res) }},
	}
	for _, s := range sequence {
		if !w.step(ctx, &res, s.state, s.run) {
			break
		}
	}
	return w.done(ctx, res, draft, start)
}

// step runs fn for the transition into to and applies the required/optional
// policy. It returns false when the run must stop.
func (w *Workflow) step(ctx context.Context, res *Result, to State, fn func(context.Context) ui.StepResult) bool {
	if err := ctx.Err(); err != nil {
		res.Err = services.Wrap(services.ErrTimeout, "publish", string(to), "run cancelled", err)
		return false
	}
	if !CanTransition(res.State, to) {
		res.Err = services.Wrap(services.ErrValidation, "publish", string(to),
			fmt.Sprintf("illegal transition %s -> %s", res.State, to), nil)
		return false
	}

	stepCtx := services.WithStep(ctx, string(to))
	logger := logging.WithContext(stepCtx, w.logger)
	r := fn(stepCtx)
	if r.StepName == "" {
		r.StepName = string(to)
	}
	if !r.Succeeded && r.Err == nil {
		r.Err = errors.New("step did not complete")
	}
	res.Steps = append(res.Steps, r)

	if !r.Succeeded {
		if to.IsRequired() {
			res.Err = services.Wrap(services.ErrStepRequired, "publish", string(to), "", r.Err)
			res.DiagnosticPath = r.DiagnosticPath
			attrs := []logging.Attr{
				logging.Error(r.Err),
				logging.String(logging.FieldErrorHint, "check the screenshot and selectors for this step"),
				logging.String(logging.FieldImpact, "episode was not published"),
			}
			if r.DiagnosticPath != "" {
				attrs = append(attrs, logging.String(logging.FieldDiagnosticPath, r.DiagnosticPath))
			}
			logging.ErrorWithContext(logger, "required publish step failed", "publish_step_failed", attrs...)
			return false
		}
		w.optionalFailed(logger, res, r)
	}

	res.State = to
	logger.Info("publish step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.String("state", string(to)),
		logging.Bool("succeeded", r.Succeeded),
		logging.Duration("step_duration", r.Duration),
	)
	return true
}

func (w *Workflow) optionalFailed(logger *slog.Logger, res *Result, r ui.StepResult) {
	res.FailedOptional = append(res.FailedOptional, r.StepName)
	label := warningLabel(r.StepName)
	logging.WarnWithContext(logger, "optional publish step failed", "optional_step_failed",
		logging.String("error_message", r.ErrorMessage()),
		logging.Strings("candidates", r.Attempted),
		logging.String(logging.FieldErrorHint, "update the selector catalog if the dashboard changed"),
		logging.String(logging.FieldImpact, label+" must be fixed by hand in the dashboard"),
	)
}

func (w *Workflow) done(ctx context.Context, res Result, draft *EpisodeDraft, start time.Time) Result {
	res.Success = res.Err == nil
	res.Warning = joinWarnings(res.FailedOptional)
	res.Duration = time.Since(start)
	if draft != nil {
		res.Title = draft.SelectedTitle
		res.EpisodeNumber = draft.EpisodeNumber
	}

	logger := logging.WithContext(ctx, w.logger)
	outcome := "published"
	switch {
	case !res.Success:
		outcome = "failed"
	case res.Draft:
		outcome = "draft_saved"
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "workflow_complete"),
		logging.String("outcome", outcome),
		logging.String("state", string(res.State)),
		logging.Duration("run_duration", res.Duration),
	}
	if res.Title != "" {
		attrs = append(attrs, logging.String("title", res.Title))
	}
	if res.Warning != "" {
		attrs = append(attrs, logging.String("warnings", res.Warning))
	}
	if res.Err != nil {
		attrs = append(attrs, logging.Error(res.Err))
	}
	logger.Info("publish workflow finished", logging.Args(attrs...)...)
	return res
}

// joinWarnings renders failed optional steps as "<step> failed" in order.
func joinWarnings(steps []string) string {
	if len(steps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		parts = append(parts, warningLabel(step)+" failed")
	}
	return strings.Join(parts, "; ")
}

func (w *Workflow) vars() map[string]string {
	return map[string]string{
		"episode_type": w.opts.EpisodeType,
		"ad_option":    w.opts.AdOption,
	}
}

// mergeFinal folds earlier attempts into final. The outcome is final's.
func mergeFinal(name string, final ui.StepResult, earlier ...ui.StepResult) ui.StepResult {
	out := final
	out.StepName = name
	out.Attempted = nil
	for _, r := range earlier {
		out.Attempted = appendUnique(out.Attempted, r.Attempted...)
		out.Duration += r.Duration
	}
	out.Attempted = appendUnique(out.Attempted, final.Attempted...)
	return out
}

// mergeAll succeeds only when every part succeeded. The first failure
// supplies the error and diagnostics.
func mergeAll(name string, parts ...ui.StepResult) ui.StepResult {
	out := ui.StepResult{StepName: name, Succeeded: true}
	for _, r := range parts {
		out.Attempted = appendUnique(out.Attempted, r.Attempted...)
		out.Duration += r.Duration
		if r.Succeeded {
			out.Matched = r.Matched
			continue
		}
		if out.Succeeded {
			out.Succeeded = false
			out.Err = r.Err
			out.IsFatal = r.IsFatal
			out.DiagnosticPath = r.DiagnosticPath
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, existing := range dst {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
