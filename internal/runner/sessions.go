package runner

import (
	"context"
	"fmt"

	"podpublish/internal/browser"
	"podpublish/internal/ui"
)

// SessionManager opens the page a run drives and releases it afterwards.
// Close must tolerate a nil page.
type SessionManager interface {
	Open(ctx context.Context) (ui.Page, error)
	Close(page ui.Page) error
}

// BrowserSessions adapts browser.Manager to SessionManager.
type BrowserSessions struct {
	Manager *browser.Manager
}

// Open starts a browser session.
func (b BrowserSessions) Open(ctx context.Context) (ui.Page, error) {
	session, err := b.Manager.Open(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Close releases a session opened by Open.
func (b BrowserSessions) Close(page ui.Page) error {
	if page == nil {
		return nil
	}
	session, ok := page.(*browser.Session)
	if !ok {
		return fmt.Errorf("close session: unexpected page type %T", page)
	}
	return b.Manager.Close(session)
}
