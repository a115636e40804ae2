package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"podpublish/internal/textutil"
	"podpublish/internal/ui"
)

// ScreenshotHook is the ui.DiagnosticHook that writes
// <Dir>/<step>-<timestamp>.png.
type ScreenshotHook struct {
	Dir string
	Now func() time.Time
}

var _ ui.DiagnosticHook = ScreenshotHook{}

// Capture screenshots page into the diagnostics directory.
func (h ScreenshotHook) Capture(ctx context.Context, page ui.Page, step string) (string, error) {
	if page == nil {
		return "", fmt.Errorf("no page to capture")
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagnostics dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.png", textutil.SanitizeToken(step), now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(h.Dir, name)
	if err := page.Screenshot(ctx, path); err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	return path, nil
}
