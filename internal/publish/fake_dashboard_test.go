package publish

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"podpublish/internal/logging"
	"podpublish/internal/ui"
)

const (
	testEpisodesURL = "https://host.test/podcasts/1/episodes"
	testLoginURL    = "https://host.test/login"
)

// fakeDashboard answers presence checks by catalog key. Every key is visible unless
// hidden; clicking login_submit logs in unless rejectLogin is set.
type fakeDashboard struct {
	mu          sync.Mutex
	labelKeys   map[string][]string
	hidden      map[string]bool
	failClick   map[string]bool
	revealOn    map[string]string
	texts       map[string]string
	loggedIn    bool
	rejectLogin bool
	calls       []string
	cookiePaths []string
}

var testVars = map[string]string{"episode_type": "public", "ad_option": "active"}

func newFakeDashboard(t *testing.T, catalog ui.Catalog) *fakeDashboard {
	t.Helper()
	d := &fakeDashboard{
		labelKeys: map[string][]string{},
		hidden: map[string]bool{
			"login_error":     true,
			"publish_error":   true,
			"publish_confirm": true,
			"restore_dialog":  true,
		},
		failClick: map[string]bool{},
		revealOn:  map[string]string{},
		texts:     map[string]string{"latest_episode_title": "EP41 - 上一集"},
		loggedIn:  true,
	}
	for key := range catalog {
		for _, spec := range catalog.Get(key, testVars) {
			label := spec.String()
			d.labelKeys[label] = append(d.labelKeys[label], key)
		}
	}
	for label := range d.labelKeys {
		sort.Strings(d.labelKeys[label])
	}
	return d
}

func (d *fakeDashboard) keyFor(sel ui.SelectorSpec) string {
	keys := d.labelKeys[sel.String()]
	for _, key := range keys {
		if !d.hidden[key] {
			return key
		}
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return sel.String()
}

func (d *fakeDashboard) record(call string) {
	d.calls = append(d.calls, call)
}

func (d *fakeDashboard) Present(ctx context.Context, sel ui.SelectorSpec, _ bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := d.labelKeys[sel.String()]
	for _, key := range keys {
		if !d.hidden[key] {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDashboard) Click(_ context.Context, sel ui.SelectorSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := d.keyFor(sel)
	d.record("click " + key)
	if d.failClick[key] {
		return errors.New("element detached")
	}
	if reveal, ok := d.revealOn[key]; ok {
		delete(d.hidden, reveal)
	}
	if key == "login_submit" {
		if d.rejectLogin {
			delete(d.hidden, "login_error")
		} else {
			d.loggedIn = true
		}
	}
	return nil
}

func (d *fakeDashboard) Fill(_ context.Context, sel ui.SelectorSpec, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("fill " + d.keyFor(sel) + " " + value)
	return nil
}

func (d *fakeDashboard) AttachFile(_ context.Context, sel ui.SelectorSpec, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("attach " + d.keyFor(sel) + " " + path)
	return nil
}

func (d *fakeDashboard) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("navigate " + url)
	return nil
}

func (d *fakeDashboard) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loggedIn {
		return testEpisodesURL, nil
	}
	return testLoginURL, nil
}

func (d *fakeDashboard) Text(_ context.Context, sel ui.SelectorSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.texts[d.keyFor(sel)]
	if !ok {
		return "", errors.New("no text")
	}
	return text, nil
}

func (d *fakeDashboard) Screenshot(context.Context, string) error { return nil }

func (d *fakeDashboard) SaveCookies(_ context.Context, path string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookiePaths = append(d.cookiePaths, path)
	return 3, nil
}

func (d *fakeDashboard) called(prefix string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, call := range d.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func (d *fakeDashboard) count(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (d *fakeDashboard) index(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, call := range d.calls {
		if strings.HasPrefix(call, prefix) {
			return i
		}
	}
	return -1
}

type workflowFixture struct {
	catalog   ui.Catalog
	dashboard *fakeDashboard
	opts      Options
	retry     ui.RetryPolicy
	titles    TitleSelector
	captured  []string
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	catalog, err := ui.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	return &workflowFixture{
		catalog:   catalog,
		dashboard: newFakeDashboard(t, catalog),
		retry:     ui.RetryPolicy{MaxAttempts: 1},
		opts: Options{
			EpisodesURL:           testEpisodesURL,
			Email:                 "host@example.com",
			Password:              "secret",
			LoginTimeout:          50 * time.Millisecond,
			NavigationTimeout:     30 * time.Millisecond,
			ElementTimeout:        30 * time.Millisecond,
			AdOption:              "active",
			EpisodeType:           "public",
			TitlePrefixFormat:     "EP%d - ",
			MaxTitleRunes:         100,
			FallbackEpisodeNumber: 7,
			CookiesPath:           "/state/host-cookies.json",
		},
	}
}

func (f *workflowFixture) workflow() *Workflow {
	hook := ui.DiagnosticFunc(func(_ context.Context, _ ui.Page, step string) (string, error) {
		path := "/diag/" + step + ".png"
		f.captured = append(f.captured, path)
		return path, nil
	})
	exec := ui.NewExecutor(ui.ExecutorOptions{
		Retry:          f.retry,
		PollInterval:   time.Millisecond,
		DefaultTimeout: 30 * time.Millisecond,
		Diagnostics:    hook,
	}, logging.NewNop())
	return NewWorkflow(exec, f.catalog, f.opts, f.titles, logging.NewNop())
}

func newDraft() *EpisodeDraft {
	return &EpisodeDraft{
		RecordID:         "rec1",
		TitleCandidates:  []string{"第一個標題", "第二個標題", "第三個標題"},
		RecommendedIndex: 1,
		Description:      "本集摘要",
		AudioFilePath:    "/tmp/episode.mp3",
		CoverFilePath:    "/tmp/cover.png",
	}
}
