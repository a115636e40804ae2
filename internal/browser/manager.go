package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gofrs/flock"

	"podpublish/internal/config"
	"podpublish/internal/logging"
	"podpublish/internal/services"
	"podpublish/internal/ui"
)

// LockFileName is created inside the profile directory while a session is open.
const LockFileName = ".podpublish.lock"

const (
	defaultLockWait     = 2 * time.Minute
	lockRetryDelay      = time.Second
	restorePromptWindow = 3 * time.Second
)

// Options configures a Manager.
type Options struct {
	ProfileDir        string
	ExecPath          string
	StartURL          string
	Headless          bool
	Width             int
	Height            int
	NavigationTimeout time.Duration
	LockWait          time.Duration
	RestoreSelectors  []ui.SelectorSpec
}

// OptionsFromConfig maps application config onto Manager options.
func OptionsFromConfig(cfg *config.Config, catalog ui.Catalog) Options {
	return Options{
		ProfileDir:        cfg.Paths.ProfileDir,
		ExecPath:          cfg.Browser.ExecPath,
		StartURL:          cfg.Host.EpisodesURL,
		Headless:          cfg.Browser.Headless,
		Width:             cfg.Browser.Width,
		Height:            cfg.Browser.Height,
		NavigationTimeout: cfg.NavigationTimeout(),
		LockWait:          cfg.NavigationTimeout(),
		RestoreSelectors:  catalog.Get("restore_dialog", nil),
	}
}

// Manager opens and closes browser sessions.
type Manager struct {
	opts   Options
	logger *slog.Logger
}

// NewManager constructs a session manager.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	return &Manager{opts: opts, logger: logging.NewComponentLogger(logger, "browser")}
}

// Open locks the profile, starts Chrome, and loads the start page. On any
// failure the partially built session is torn down before returning.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	if m.opts.ProfileDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "browser", "open", "profile directory not configured", nil)
	}
	if err := os.MkdirAll(m.opts.ProfileDir, 0o700); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "browser", "open", "create profile directory", err)
	}

	lock, err := m.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	session := &Session{lock: lock, logger: m.logger}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(m.opts.ProfileDir),
		chromedp.Flag("headless", m.opts.Headless),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if m.opts.Width > 0 && m.opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(m.opts.Width, m.opts.Height))
	}
	if m.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(m.opts.ExecPath))
	}

	// The browser outlives ctx's deadline; Close cancels it.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	session.cancelAlloc = cancelAlloc
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		m.logger.Debug(fmt.Sprintf(format, args...))
	}))
	session.tabCtx = tabCtx
	session.cancelTab = cancelTab

	if err := chromedp.Run(tabCtx); err != nil {
		closeErr := m.Close(session)
		return nil, services.Wrap(services.ErrExternalTool, "browser", "start chrome", "", errors.Join(err, closeErr))
	}

	if m.opts.StartURL != "" {
		navCtx, cancel := m.navigationContext(ctx)
		err := session.Navigate(navCtx, m.opts.StartURL)
		cancel()
		if err != nil {
			closeErr := m.Close(session)
			return nil, services.Wrap(services.ErrTransient, "browser", "open start page", m.opts.StartURL, errors.Join(err, closeErr))
		}
		m.dismissRestorePrompt(ctx, session)
	}

	m.logger.Info("browser session opened",
		logging.String("profile_dir", m.opts.ProfileDir),
		logging.Bool("headless", m.opts.Headless),
	)
	return session, nil
}

// Close shuts the browser down and releases the profile lock. It is safe to
// call with nil, with a partially opened session, and more than once.
func (m *Manager) Close(session *Session) error {
	if session == nil {
		return nil
	}
	err := session.close()
	if err != nil {
		logging.WarnWithContext(m.logger, "browser close incomplete", "browser_close_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for orphaned chrome processes"),
			logging.String(logging.FieldImpact, "next run may wait for the profile lock"),
		)
		return err
	}
	m.logger.Debug("browser session closed")
	return nil
}

func (m *Manager) acquireLock(ctx context.Context) (*flock.Flock, error) {
	lockPath := filepath.Join(m.opts.ProfileDir, LockFileName)
	lock := flock.New(lockPath)
	waitCtx, cancel := context.WithTimeout(ctx, m.opts.LockWait)
	defer cancel()
	ok, err := lock.TryLockContext(waitCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, services.Wrap(services.ErrTransient, "browser", "lock profile", lockPath, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "browser", "lock profile",
			fmt.Sprintf("profile %s is in use by another run", m.opts.ProfileDir), nil)
	}
	return lock, nil
}

func (m *Manager) navigationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.NavigationTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.NavigationTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) dismissRestorePrompt(ctx context.Context, session *Session) {
	if len(m.opts.RestoreSelectors) == 0 {
		return
	}
	exec := ui.NewExecutor(ui.ExecutorOptions{PollInterval: 250 * time.Millisecond}, m.logger)
	sel, ok := exec.WaitAny(ctx, session, m.opts.RestoreSelectors, restorePromptWindow)
	if !ok {
		return
	}
	if err := session.Click(ctx, sel); err != nil {
		m.logger.Debug("restore prompt click failed", logging.String("selector", sel.String()), logging.Error(err))
		return
	}
	m.logger.Info("restore prompt dismissed", logging.String("selector", sel.String()))
}
