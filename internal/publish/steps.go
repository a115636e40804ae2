package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"podpublish/internal/logging"
	"podpublish/internal/services"
	"podpublish/internal/textutil"
	"podpublish/internal/ui"
)

const (
	loginPollInterval   = 500 * time.Millisecond
	directAttachTimeout = 5 * time.Second
	confirmWaitTimeout  = 5 * time.Second
)

func (w *Workflow) login(ctx context.Context, page ui.Page) ui.StepResult {
	name := string(StateLoggedIn)
	start := time.Now()
	result := ui.StepResult{StepName: name}
	logger := logging.WithContext(ctx, w.logger)

	err := w.exec.Retry().Do(ctx, func(attempt int) error {
		if attempt > 1 {
			logger.Info("retrying dashboard login", logging.Int("attempt", attempt))
		}
		return w.loginOnce(ctx, page, &result)
	})
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		result.IsFatal = true
		result.DiagnosticPath = w.exec.Capture(ctx, page, name)
		return result
	}
	result.Succeeded = true
	w.saveCookies(ctx, page)
	return result
}

func (w *Workflow) loginOnce(ctx context.Context, page ui.Page, result *ui.StepResult) error {
	navCtx, cancel := context.WithTimeout(ctx, w.opts.NavigationTimeout)
	err := page.Navigate(navCtx, w.opts.EpisodesURL)
	cancel()
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "login", "open episodes page", err)
	}
	if w.onEpisodesPage(ctx, page) {
		result.Matched = "existing session"
		logging.WithContext(ctx, w.logger).Debug("dashboard session still valid")
		return nil
	}

	fields := []ui.Step{
		{Name: "login email", Candidates: w.catalog.Get("login_email", nil), Action: ui.Fill(w.opts.Email), Timeout: w.opts.ElementTimeout},
		{Name: "login password", Candidates: w.catalog.Get("login_password", nil), Action: ui.Fill(w.opts.Password), Timeout: w.opts.ElementTimeout},
		{Name: "login submit", Candidates: w.catalog.Get("login_submit", nil), Action: ui.Click(), Timeout: w.opts.ElementTimeout},
	}
	for _, step := range fields {
		r := w.exec.Perform(ctx, page, step)
		result.Attempted = appendUnique(result.Attempted, r.Attempted...)
		if !r.Succeeded {
			return r.Err
		}
		result.Matched = r.Matched
	}
	return w.awaitLogin(ctx, page)
}

// awaitLogin waits for the dashboard to land on the episodes page or show
// a credential error.
func (w *Workflow) awaitLogin(ctx context.Context, page ui.Page) error {
	waitCtx, cancel := context.WithTimeout(ctx, w.opts.LoginTimeout)
	defer cancel()
	errorCandidates := w.catalog.Get("login_error", nil)
	for {
		if w.onEpisodesPage(waitCtx, page) {
			return nil
		}
		if _, ok := w.exec.Visible(waitCtx, page, errorCandidates); ok {
			return services.Wrap(services.ErrValidation, "publish", "login", "dashboard rejected the credentials", nil)
		}
		if err := ui.SleepContext(waitCtx, loginPollInterval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrTimeout, "publish", "login",
				fmt.Sprintf("episodes page did not load within %s", w.opts.LoginTimeout), nil)
		}
	}
}

func (w *Workflow) onEpisodesPage(ctx context.Context, page ui.Page) bool {
	current, err := page.URL(ctx)
	if err != nil {
		return false
	}
	lower := strings.ToLower(current)
	return strings.Contains(lower, "/episodes") && !strings.Contains(lower, "login")
}

func (w *Workflow) saveCookies(ctx context.Context, page ui.Page) {
	saver, ok := page.(cookieSaver)
	if !ok || strings.TrimSpace(w.opts.CookiesPath) == "" {
		return
	}
	logger := logging.WithContext(ctx, w.logger)
	count, err := saver.SaveCookies(ctx, w.opts.CookiesPath)
	if err != nil {
		logging.WarnWithContext(logger, "failed to save session cookies", "cookie_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
			logging.String(logging.FieldImpact, "cookie file is stale; the browser profile still keeps the session"),
		)
		return
	}
	logger.Debug("session cookies saved",
		logging.Int("cookie_count", count),
		logging.String("cookies_path", w.opts.CookiesPath),
	)
}

// prepareTitle numbers the episode, prefixes every candidate, and asks the
// title selector for a choice.
func (w *Workflow) prepareTitle(ctx context.Context, page ui.Page, draft *EpisodeDraft) error {
	logger := logging.WithContext(ctx, w.logger)
	if draft.EpisodeNumber <= 0 {
		draft.EpisodeNumber = w.detectEpisodeNumber(ctx, page)
	}
	for i, candidate := range draft.TitleCandidates {
		draft.TitleCandidates[i] = textutil.EpisodeTitle(w.opts.TitlePrefixFormat, draft.EpisodeNumber, candidate, w.opts.MaxTitleRunes)
	}
	if len(draft.TitleCandidates) == 0 {
		return services.Wrap(services.ErrValidation, "publish", "title", "no title candidates", nil)
	}
	if draft.SelectedTitle != "" {
		return nil
	}

	index := draft.RecommendedIndex
	reason := "recommended"
	if w.titles != nil {
		chosen, err := w.titles.ChooseTitle(ctx, *draft)
		switch {
		case err != nil && ctx.Err() != nil:
			return services.Wrap(services.ErrTimeout, "publish", "title", "run cancelled during title selection", ctx.Err())
		case err != nil:
			logging.WarnWithContext(logger, "title selection failed", "title_selection_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check approval listener and mail settings"),
				logging.String(logging.FieldImpact, "recommended title used"),
			)
		default:
			index = chosen
			reason = "selector"
		}
	}
	if err := draft.SelectTitle(index); err != nil {
		draft.SelectedTitle = draft.Recommended()
		reason = "recommended_fallback"
	}
	logger.Info("episode title selected",
		logging.Args(append(logging.DecisionAttrs("title_selection", draft.SelectedTitle, reason),
			logging.Int("episode_number", draft.EpisodeNumber),
		)...)...,
	)
	return nil
}

// detectEpisodeNumber reads the newest episode title and returns its number
// plus one, or the configured fallback.
func (w *Workflow) detectEpisodeNumber(ctx context.Context, page ui.Page) int {
	logger := logging.WithContext(ctx, w.logger)
	if sel, ok := w.exec.WaitAny(ctx, page, w.catalog.Get("latest_episode_title", nil), w.opts.ElementTimeout); ok {
		text, err := page.Text(ctx, sel)
		if err == nil {
			if n, ok := textutil.ParseEpisodeNumber(text); ok {
				logger.Debug("latest episode detected", logging.String("latest_title", text), logging.Int("episode_number", n+1))
				return n + 1
			}
		}
	}
	logging.WarnWithContext(logger, "could not detect latest episode number", "episode_number_fallback",
		logging.Int("episode_number", w.opts.FallbackEpisodeNumber),
		logging.String(logging.FieldErrorHint, "check latest_episode_title selector or set publish.fallback_episode_number"),
		logging.String(logging.FieldImpact, "title prefix uses the fallback episode number"),
	)
	return w.opts.FallbackEpisodeNumber
}

func (w *Workflow) createEpisode(ctx context.Context, page ui.Page) ui.StepResult {
	name := string(StateEpisodeCreated)
	click := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("new_episode", nil),
		Action:     ui.Click(),
		Timeout:    w.opts.ElementTimeout,
		Required:   true,
	})
	if !click.Succeeded {
		return click
	}
	form := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("create_episode_heading", nil),
		Action:     ui.WaitForVisible(),
		Timeout:    w.opts.NavigationTimeout,
		Required:   true,
	})
	return mergeFinal(name, form, click)
}

// uploadAudio attaches the audio file directly when an input is present and
// otherwise opens the uploader first.
func (w *Workflow) uploadAudio(ctx context.Context, page ui.Page, path string) ui.StepResult {
	name := string(StateAudioUploaded)
	if strings.TrimSpace(path) == "" {
		return ui.StepResult{
			StepName: name,
			IsFatal:  true,
			Err:      services.Wrap(services.ErrValidation, "publish", "audio", "no audio file in draft", nil),
		}
	}

	inputs := w.catalog.Get("audio_input", nil)
	direct := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: inputs,
		Action:     ui.AttachFile(path),
		Timeout:    min(directAttachTimeout, w.opts.ElementTimeout),
	})
	result := direct
	if !direct.Succeeded {
		logging.WithContext(ctx, w.logger).Debug("no direct audio input; opening uploader")
		trigger := w.exec.Perform(ctx, page, ui.Step{
			Name:       name,
			Candidates: w.catalog.Get("audio_upload_trigger", nil),
			Action:     ui.Click(),
			Timeout:    w.opts.ElementTimeout,
		})
		second := w.exec.Perform(ctx, page, ui.Step{
			Name:       name,
			Candidates: inputs,
			Action:     ui.AttachFile(path),
			Timeout:    w.opts.ElementTimeout,
			Required:   true,
		})
		result = mergeFinal(name, second, direct, trigger)
	}
	if !result.Succeeded {
		return result
	}
	w.awaitUpload(ctx, page)
	return result
}

func (w *Workflow) awaitUpload(ctx context.Context, page ui.Page) {
	if w.opts.UploadWait <= 0 {
		return
	}
	logger := logging.WithContext(ctx, w.logger)
	start := time.Now()
	if _, ok := w.exec.WaitAny(ctx, page, w.catalog.Get("audio_upload_done", nil), w.opts.UploadWait); ok {
		logger.Info("audio upload finished", logging.Duration("step_duration", time.Since(start)))
		return
	}
	logging.WarnWithContext(logger, "audio upload completion not observed", "audio_upload_unconfirmed",
		logging.Duration("waited", w.opts.UploadWait),
		logging.String(logging.FieldErrorHint, "check audio_upload_done selectors"),
		logging.String(logging.FieldImpact, "publish may start before processing finishes"),
	)
}

func (w *Workflow) fillMetadata(ctx context.Context, page ui.Page, draft *EpisodeDraft) ui.StepResult {
	name := string(StateMetadataFilled)
	title := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("title_input", nil),
		Action:     ui.Fill(draft.SelectedTitle),
		Timeout:    w.opts.ElementTimeout,
	})
	description := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("description_editor", nil),
		Action:     ui.Fill(draft.Description),
		Timeout:    w.opts.ElementTimeout,
	})
	return mergeAll(name, title, description)
}

func (w *Workflow) selectType(ctx context.Context, page ui.Page) ui.StepResult {
	candidates := w.catalog.Get("episode_type", w.vars())
	candidates = append(candidates, w.catalog.Get("episode_type_"+w.opts.EpisodeType, nil)...)
	return w.exec.Perform(ctx, page, ui.Step{
		Name:       string(StateTypeSelected),
		Candidates: candidates,
		Action:     ui.Click(),
		Timeout:    w.opts.ElementTimeout,
	})
}

func (w *Workflow) setAdOptions(ctx context.Context, page ui.Page) ui.StepResult {
	name := string(StateAdOptionsSet)
	vars := w.vars()
	pre := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("ad_pre_roll", vars),
		Action:     ui.Click(),
		Timeout:    w.opts.ElementTimeout,
	})
	mid := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("ad_mid_roll", vars),
		Action:     ui.Click(),
		Timeout:    w.opts.ElementTimeout,
	})
	return mergeAll(name, pre, mid)
}

func (w *Workflow) uploadCover(ctx context.Context, page ui.Page, path string) ui.StepResult {
	name := string(StateCoverUploaded)
	if strings.TrimSpace(path) == "" {
		logging.WithContext(ctx, w.logger).Info("no cover image; keeping the show default")
		return ui.StepResult{StepName: name, Succeeded: true, Matched: "skipped"}
	}

	sequence := []ui.Step{
		{Name: name, Candidates: w.catalog.Get("cover_tab", nil), Action: ui.Click()},
		{Name: name, Candidates: w.catalog.Get("cover_open", nil), Action: ui.Click()},
		{Name: name, Candidates: w.catalog.Get("cover_input", nil), Action: ui.AttachFile(path)},
		{Name: name, Candidates: w.catalog.Get("cover_confirm", nil), Action: ui.Click()},
	}
	parts := make([]ui.StepResult, 0, len(sequence))
	for _, step := range sequence {
		step.Timeout = w.opts.ElementTimeout
		r := w.exec.Perform(ctx, page, step)
		parts = append(parts, r)
		if !r.Succeeded {
			break
		}
	}
	return mergeAll(name, parts...)
}

// publish clicks publish (or save draft in dry-run), handles an optional
// confirmation dialog, then checks the dashboard's response message.
func (w *Workflow) publish(ctx context.Context, page ui.Page, res *Result) ui.StepResult {
	name := string(StatePublished)
	logger := logging.WithContext(ctx, w.logger)

	if w.opts.DryRun {
		saved := w.exec.Perform(ctx, page, ui.Step{
			Name:       name,
			Candidates: w.catalog.Get("save_draft", nil),
			Action:     ui.Click(),
			Timeout:    w.opts.ElementTimeout,
			Required:   true,
		})
		if saved.Succeeded {
			if _, ok := w.exec.WaitAny(ctx, page, w.catalog.Get("draft_saved", nil), w.opts.ElementTimeout); !ok {
				logger.Debug("draft saved message not observed")
			}
		}
		return saved
	}

	click := w.exec.Perform(ctx, page, ui.Step{
		Name:       name,
		Candidates: w.catalog.Get("publish", nil),
		Action:     ui.Click(),
		Timeout:    w.opts.ElementTimeout,
		Required:   true,
	})
	if !click.Succeeded {
		return click
	}

	confirmCandidates := w.catalog.Get("publish_confirm", nil)
	if _, ok := w.exec.WaitAny(ctx, page, confirmCandidates, min(confirmWaitTimeout, w.opts.ElementTimeout)); ok {
		confirmCtx := services.WithStep(ctx, StepPublishConfirmed)
		confirm := w.exec.Perform(confirmCtx, page, ui.Step{
			Name:       StepPublishConfirmed,
			Candidates: confirmCandidates,
			Action:     ui.Click(),
			Timeout:    w.opts.ElementTimeout,
		})
		res.Steps = append(res.Steps, confirm)
		if !confirm.Succeeded {
			w.optionalFailed(logging.WithContext(confirmCtx, w.logger), res, confirm)
		}
	}

	successCandidates := w.catalog.Get("publish_success", nil)
	errorCandidates := w.catalog.Get("publish_error", nil)
	watch := append(append([]ui.SelectorSpec{}, errorCandidates...), successCandidates...)
	sel, ok := w.exec.WaitAny(ctx, page, watch, w.opts.ElementTimeout)
	if !ok {
		logging.WarnWithContext(logger, "publish response not observed", "publish_unconfirmed",
			logging.String(logging.FieldErrorHint, "verify the episode in the dashboard"),
			logging.String(logging.FieldImpact, "publish assumed successful"),
		)
		return click
	}
	if !containsSelector(errorCandidates, sel) {
		return click
	}

	message, err := page.Text(ctx, sel)
	if err != nil || strings.TrimSpace(message) == "" {
		message = sel.String()
	}
	failed := click
	failed.Succeeded = false
	failed.IsFatal = true
	failed.Matched = sel.String()
	failed.Err = services.Wrap(services.ErrExternalTool, "publish", "publish",
		"dashboard reported an error: "+strings.TrimSpace(message), nil)
	failed.DiagnosticPath = w.exec.Capture(ctx, page, name)
	return failed
}

func containsSelector(list []ui.SelectorSpec, sel ui.SelectorSpec) bool {
	label := sel.String()
	for _, candidate := range list {
		if candidate.String() == label {
			return true
		}
	}
	return false
}
