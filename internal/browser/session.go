package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/gofrs/flock"

	"podpublish/internal/services"
	"podpublish/internal/ui"
)

// Session is one running Chrome instance bound to a locked profile.
type Session struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	lock        *flock.Flock
	logger      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ ui.Page = (*Session)(nil)

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s == nil || s.tabCtx == nil {
		return errors.New("browser session not started")
	}
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func queryOption(sel ui.SelectorSpec) (string, chromedp.QueryOption, error) {
	query, strategy := sel.Query()
	switch strategy {
	case ui.StrategyCSS:
		return query, chromedp.ByQuery, nil
	case ui.StrategyXPath:
		return query, chromedp.BySearch, nil
	default:
		return "", nil, services.Wrap(services.ErrValidation, "browser", "query", fmt.Sprintf("invalid selector %s", sel), nil)
	}
}

// Present checks for sel without waiting.
func (s *Session) Present(ctx context.Context, sel ui.SelectorSpec, visible bool) (bool, error) {
	script, err := presenceScript(sel, visible)
	if err != nil {
		return false, err
	}
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Click clicks the first visible match.
func (s *Session) Click(ctx context.Context, sel ui.SelectorSpec) error {
	query, by, err := queryOption(sel)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Click(query, by, chromedp.NodeVisible))
}

// Fill replaces the value of an input, textarea, or contenteditable editor.
func (s *Session) Fill(ctx context.Context, sel ui.SelectorSpec, value string) error {
	script, err := fillScript(sel, value)
	if err != nil {
		return err
	}
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("fill %s: element not found", sel)
	}
	return nil
}

// AttachFile sets path on the first matching file input; the input may be hidden.
func (s *Session) AttachFile(ctx context.Context, sel ui.SelectorSpec, path string) error {
	query, by, err := queryOption(sel)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve upload path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	return s.run(ctx, chromedp.SetUploadFiles(query, []string{abs}, by))
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

// URL returns the current document location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

// Text returns the trimmed text of the first match.
func (s *Session) Text(ctx context.Context, sel ui.SelectorSpec) (string, error) {
	script, err := textScript(sel)
	if err != nil {
		return "", err
	}
	var text *string
	if err := s.run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	if text == nil {
		return "", services.Wrap(services.ErrNotFound, "browser", "text", sel.String(), nil)
	}
	return *text, nil
}

// Screenshot writes a full-page PNG to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// SaveCookies writes the browser's cookies to path as JSON.
func (s *Session) SaveCookies(ctx context.Context, path string) (int, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return 0, fmt.Errorf("read cookies: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return 0, err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return 0, err
	}
	return len(cookies), os.Rename(tmp, path)
}

func (s *Session) close() error {
	s.closeOnce.Do(func() {
		if s.tabCtx != nil {
			if err := chromedp.Cancel(s.tabCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		}
		if s.cancelTab != nil {
			s.cancelTab()
		}
		if s.cancelAlloc != nil {
			s.cancelAlloc()
		}
		if s.lock != nil {
			if err := s.lock.Unlock(); err != nil {
				s.closeErr = errors.Join(s.closeErr, fmt.Errorf("release profile lock: %w", err))
			}
		}
	})
	return s.closeErr
}
