package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"podpublish/internal/approval"
	"podpublish/internal/browser"
	"podpublish/internal/config"
	"podpublish/internal/content"
	"podpublish/internal/history"
	"podpublish/internal/logging"
	"podpublish/internal/media"
	"podpublish/internal/notifications"
	"podpublish/internal/publish"
	"podpublish/internal/services"
	"podpublish/internal/services/airtable"
	"podpublish/internal/services/gmail"
	"podpublish/internal/services/googleauth"
	"podpublish/internal/services/llm"
	"podpublish/internal/ui"
)

// Mail provider names accepted in mail.provider.
const (
	mailProviderGmail = "gmail"
	mailProviderLog   = "log"
)

// Assembly is a Runner built from configuration plus the resources it owns.
type Assembly struct {
	Runner   *Runner
	History  *history.Store
	Notifier notifications.Service
}

// Close releases the history database.
func (a *Assembly) Close() error {
	if a == nil || a.History == nil {
		return nil
	}
	return a.History.Close()
}

// Build wires every collaborator named by cfg. Credentials are checked up
// front so a misconfigured run fails before touching the network.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Assembly, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "build", "config is nil", nil)
	}
	if err := cfg.RequireRunCredentials(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "build", "", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "build", "", err)
	}
	logger = logging.NewComponentLogger(logger, "runner")

	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	if n, err := store.AbandonRunning(ctx, "process exited before the run finished"); err == nil && n > 0 {
		logger.Info("stale runs closed", logging.Int64("count", n))
	}
	asm := &Assembly{History: store}

	googleClient, googleErr := googleHTTPClient(ctx, cfg)
	provider, err := media.FromConfig(ctx, cfg, googleClient, logger)
	if err != nil {
		_ = asm.Close()
		if googleErr != nil && cfg.Drive.Provider == media.ProviderGoogle {
			return nil, errors.Join(err, googleErr)
		}
		return nil, err
	}

	catalog, err := ui.LoadCatalog(cfg.Host.SelectorsFile)
	if err != nil {
		_ = asm.Close()
		return nil, services.Wrap(services.ErrConfiguration, "runner", "build", "load selector catalog", err)
	}

	push := notifications.NewService(cfg)
	asm.Notifier = push
	mail := mailNotifier(ctx, cfg, googleClient, googleErr, logger)
	rendezvous := approval.New(approval.OptionsFromConfig(cfg), approvalNotifier{mail: mail, push: push, logger: logger}, logger)

	exec := ui.NewExecutor(ui.ExecutorOptions{
		Retry:          ui.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.RetryBackoff()},
		Settle:         cfg.SettleInterval(),
		DefaultTimeout: cfg.ElementTimeout(),
		Diagnostics:    browser.ScreenshotHook{Dir: cfg.Paths.DiagnosticsDir},
	}, logger)

	tracker := airtable.NewClient(airtable.ConfigFrom(cfg), nil, logger)
	asm.Runner = New(Deps{
		Source:    tracker,
		Generator: generator(ctx, cfg, logger),
		Media:     provider,
		Sessions:  BrowserSessions{Manager: browser.NewManager(browser.OptionsFromConfig(cfg, catalog), logger)},
		Executor:  exec,
		Catalog:   catalog,
		Publish:   publish.OptionsFromConfig(cfg),
		Titles:    ApprovalSelector{Approver: rendezvous, Timeout: cfg.ApprovalTimeout()},
		Trackers:  []StatusSink{tracker},
		History:   store,
		Notifier:  push,
		Inspector: media.Inspector{},
	}, logger)
	return asm, nil
}

// googleHTTPClient returns the authorized client when drive or mail needs it.
func googleHTTPClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	if cfg.Drive.Provider != media.ProviderGoogle && cfg.Mail.Provider != mailProviderGmail {
		return nil, nil
	}
	return googleauth.HTTPClient(ctx, googleauth.Options{
		CredentialsFile: cfg.Mail.CredentialsFile,
		TokenFile:       cfg.Mail.TokenFile,
	})
}

// generator returns nil when the LLM is disabled so runs use fallback copy.
func generator(ctx context.Context, cfg *config.Config, logger *slog.Logger) content.Generator {
	completer, err := llm.New(ctx, cfg.GetLLM())
	if errors.Is(err, llm.ErrDisabled) {
		logger.Info("content generation disabled; fallback titles will be used")
		return nil
	}
	if err != nil {
		logging.WarnWithContext(logger, "llm client unavailable", "llm_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the llm section of the config"),
			logging.String(logging.FieldImpact, "fallback titles will be used"),
		)
		return nil
	}
	return content.NewLLMGenerator(completer, content.Options{FallbackModel: cfg.LLM.FallbackModel}, logger)
}

// mailNotifier builds the Gmail sender, degrading to log output when mail is
// disabled or Google auth is missing.
func mailNotifier(ctx context.Context, cfg *config.Config, client *http.Client, clientErr error, logger *slog.Logger) approval.Notifier {
	if cfg.Mail.Provider == mailProviderLog {
		return approval.LogNotifier{Logger: logger}
	}
	if clientErr != nil {
		logging.WarnWithContext(logger, "gmail unavailable", "gmail_auth_missing",
			logging.Error(clientErr),
			logging.String(logging.FieldErrorHint, "run `podpublish auth url` and `podpublish auth exchange`"),
			logging.String(logging.FieldImpact, "approval links are only written to the log"),
		)
		return approval.LogNotifier{Logger: logger}
	}
	sender, err := gmail.NewSender(ctx, client, gmail.Options{Recipient: cfg.Mail.Recipient, Sender: cfg.Mail.Sender}, logger)
	if err != nil {
		logging.WarnWithContext(logger, "gmail unavailable", "gmail_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check mail.recipient"),
			logging.String(logging.FieldImpact, "approval links are only written to the log"),
		)
		return approval.LogNotifier{Logger: logger}
	}
	return sender
}

// approvalNotifier mails the links and mirrors the request to ntfy. Only the
// mail error is returned.
type approvalNotifier struct {
	mail   approval.Notifier
	push   notifications.Service
	logger *slog.Logger
}

func (n approvalNotifier) SendApprovalRequest(ctx context.Context, notice approval.Notice) error {
	if n.push != nil {
		url := notice.CallbackBaseURL
		if notice.RecommendedIndex >= 0 && notice.RecommendedIndex < len(notice.Links) {
			url = notice.Links[notice.RecommendedIndex].URL
		}
		err := n.push.Publish(ctx, notifications.EventApprovalRequested, notifications.Payload{
			"episode": notice.EpisodeNumber,
			"url":     url,
		})
		if err != nil {
			logging.WithContext(ctx, n.logger).Debug("approval push failed", logging.Error(err))
		}
	}
	return n.mail.SendApprovalRequest(ctx, notice)
}
