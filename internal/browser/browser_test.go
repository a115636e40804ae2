package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"podpublish/internal/logging"
	"podpublish/internal/ui"
)

func TestCloseIsNilSafe(t *testing.T) {
	m := NewManager(Options{ProfileDir: t.TempDir()}, logging.NewNop())
	if err := m.Close(nil); err != nil {
		t.Fatalf("Close(nil) = %v", err)
	}
}

func TestCloseReleasesLockOnPartialSession(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(Options{ProfileDir: dir, LockWait: 50 * time.Millisecond}, logging.NewNop())

	lock, err := m.acquireLock(context.Background())
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	partial := &Session{lock: lock, logger: logging.NewNop()}

	if err := m.Close(partial); err != nil {
		t.Fatalf("Close(partial) = %v", err)
	}
	if err := m.Close(partial); err != nil {
		t.Fatalf("second Close = %v", err)
	}

	other := flock.New(filepath.Join(dir, LockFileName))
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after close, ok=%v err=%v", ok, err)
	}
	_ = other.Unlock()
}

func TestAcquireLockFailsWhileProfileInUse(t *testing.T) {
	dir := t.TempDir()
	holder := flock.New(filepath.Join(dir, LockFileName))
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer holder.Unlock()

	m := NewManager(Options{ProfileDir: dir, LockWait: 20 * time.Millisecond}, logging.NewNop())
	if _, err := m.acquireLock(context.Background()); err == nil || !strings.Contains(err.Error(), "in use") {
		t.Fatalf("expected in-use error, got %v", err)
	}
}

func TestOpenRequiresProfileDir(t *testing.T) {
	m := NewManager(Options{}, logging.NewNop())
	s, err := m.Open(context.Background())
	if err == nil || s != nil {
		t.Fatalf("expected configuration error, got session=%v err=%v", s, err)
	}
}

func TestSessionRejectsActionsBeforeStart(t *testing.T) {
	var s *Session
	if _, err := s.Present(context.Background(), ui.CSS("#x"), true); err == nil {
		t.Fatal("expected error from nil session")
	}
}

type screenshotPage struct {
	ui.Page
	path string
	err  error
}

func (p *screenshotPage) Screenshot(_ context.Context, path string) error {
	p.path = path
	if p.err != nil {
		return p.err
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

func TestScreenshotHookNamesFileByStep(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	hook := ScreenshotHook{Dir: dir, Now: func() time.Time { return fixed }}
	page := &screenshotPage{}

	path, err := hook.Capture(context.Background(), page, "Audio Uploaded")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := filepath.Join(dir, "audio_uploaded-20250304T050607Z.png")
	if path != want || page.path != want {
		t.Fatalf("path = %q (page %q), want %q", path, page.path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("screenshot missing: %v", err)
	}
}

func TestScreenshotHookPropagatesErrors(t *testing.T) {
	hook := ScreenshotHook{Dir: t.TempDir()}
	if _, err := hook.Capture(context.Background(), &screenshotPage{err: errors.New("tab crashed")}, "login"); err == nil {
		t.Fatal("expected error")
	}
}

func TestScriptsEmbedQueriesSafely(t *testing.T) {
	script, err := presenceScript(ui.Text("button", `發布 "now"`), true)
	if err != nil {
		t.Fatalf("presenceScript: %v", err)
	}
	if !strings.Contains(script, "document.evaluate(") || !strings.Contains(script, "ORDERED_NODE_SNAPSHOT_TYPE") {
		t.Fatalf("text selector should evaluate every xpath match: %s", script)
	}
	if !strings.Contains(script, `'發布 \"now\"'`) {
		t.Fatalf("query literal not escaped: %s", script)
	}
	css, err := presenceScript(ui.CSS(".ant-modal"), true)
	if err != nil {
		t.Fatalf("presenceScript css: %v", err)
	}
	if !strings.Contains(css, `document.querySelectorAll(".ant-modal")`) || !strings.Contains(css, "els.some(") {
		t.Fatalf("css check should check every match: %s", css)
	}
	fill, err := fillScript(ui.CSS(".ql-editor"), "line1\nline2 \"quoted\"")
	if err != nil {
		t.Fatalf("fillScript: %v", err)
	}
	if !strings.Contains(fill, `document.querySelector(".ql-editor")`) || !strings.Contains(fill, `"line1\nline2 \"quoted\""`) {
		t.Fatalf("fill script not escaped: %s", fill)
	}
	if _, err := findExpr(ui.SelectorSpec{Kind: "bogus"}); err == nil {
		t.Fatal("expected invalid selector error")
	}
}
