package ui

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"podpublish/internal/logging"
	"podpublish/internal/services"
)

func newTestExecutor(hook DiagnosticHook) *Executor {
	return NewExecutor(ExecutorOptions{
		Retry:          RetryPolicy{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
		PollInterval:   time.Millisecond,
		DefaultTimeout: 50 * time.Millisecond,
		Diagnostics:    hook,
	}, logging.NewNop())
}

func TestPerformEmptyCandidatesReturnsImmediately(t *testing.T) {
	page := newFakePage()
	exec := newTestExecutor(nil)

	start := time.Now()
	res := exec.Perform(context.Background(), page, Step{Name: "empty", Action: Click(), Timeout: time.Hour})

	if res.Succeeded {
		t.Fatal("expected failure for empty candidates")
	}
	if time.Since(start) > time.Second {
		t.Fatal("empty candidate list should not wait for the timeout")
	}
	if page.checkCount() != 0 {
		t.Fatalf("expected no checks, got %d", page.checkCount())
	}
	if !errors.Is(res.Err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", res.Err)
	}
}

func TestPerformFirstVisibleCandidateWins(t *testing.T) {
	page := newFakePage()
	first := CSS("#missing")
	second := Text("button", "發布")
	third := CSS("#also-visible")
	page.visibleAfter[second.String()] = 0
	page.visibleAfter[third.String()] = 0

	res := newTestExecutor(nil).Perform(context.Background(), page, Step{
		Name:       "publish",
		Candidates: []SelectorSpec{first, second, third},
		Action:     Click(),
	})

	if !res.Succeeded {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Matched != second.String() {
		t.Fatalf("matched %q, want %q", res.Matched, second.String())
	}
	if got, want := page.callList(), []string{"click " + second.String()}; !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if want := []string{first.String(), second.String()}; !reflect.DeepEqual(res.Attempted, want) {
		t.Fatalf("attempted = %v, want %v", res.Attempted, want)
	}
}

func TestPerformPollsUntilCandidateAppears(t *testing.T) {
	page := newFakePage()
	sel := CSS("#title")
	page.visibleAfter[sel.String()] = 3

	res := newTestExecutor(nil).Perform(context.Background(), page, Step{
		Name:       "title",
		Candidates: []SelectorSpec{sel},
		Action:     Fill("EP1 - 標題"),
		Timeout:    time.Second,
	})

	if !res.Succeeded {
		t.Fatalf("expected success after polling, got %v", res.Err)
	}
	if len(res.Attempted) != 1 {
		t.Fatalf("attempted should list each candidate once: %v", res.Attempted)
	}
}

func TestPerformAttachFileAcceptsHiddenInput(t *testing.T) {
	page := newFakePage()
	sel := CSS(`input[type="file"]`)
	page.present[sel.String()] = true

	res := newTestExecutor(nil).Perform(context.Background(), page, Step{
		Name:       "audio",
		Candidates: []SelectorSpec{sel},
		Action:     AttachFile("/tmp/ep.mp3"),
		Required:   true,
	})

	if !res.Succeeded {
		t.Fatalf("expected hidden file input to be used, got %v", res.Err)
	}
}

func TestPerformRetriesFailedActionOnMatchedCandidate(t *testing.T) {
	page := newFakePage()
	sel := CSS("#submit")
	page.visibleAfter[sel.String()] = 0
	page.clickErrs[sel.String()] = []error{errors.New("detached")}

	res := newTestExecutor(nil).Perform(context.Background(), page, Step{
		Name:       "submit",
		Candidates: []SelectorSpec{sel},
		Action:     Click(),
	})

	if !res.Succeeded {
		t.Fatalf("expected retry to succeed, got %v", res.Err)
	}
	if got := len(page.callList()); got != 2 {
		t.Fatalf("expected 2 click attempts, got %d", got)
	}
}

func TestPerformOptionalMissIsNotFatal(t *testing.T) {
	var captured []string
	hook := DiagnosticFunc(func(_ context.Context, _ Page, step string) (string, error) {
		captured = append(captured, step)
		return "/diag/" + step + ".png", nil
	})
	res := newTestExecutor(hook).Perform(context.Background(), newFakePage(), Step{
		Name:       "ads",
		Candidates: []SelectorSpec{CSS("#daiStatus")},
		Action:     Click(),
		Timeout:    10 * time.Millisecond,
	})

	if res.Succeeded || res.IsFatal {
		t.Fatalf("expected non-fatal failure, got %+v", res)
	}
	if len(captured) != 0 {
		t.Fatalf("optional miss must not capture diagnostics: %v", captured)
	}
	if !errors.Is(res.Err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", res.Err)
	}
}

func TestPerformRequiredMissCapturesDiagnosticsOnce(t *testing.T) {
	var captured []string
	hook := DiagnosticFunc(func(_ context.Context, _ Page, step string) (string, error) {
		captured = append(captured, step)
		return "/diag/" + step + ".png", nil
	})
	res := newTestExecutor(hook).Perform(context.Background(), newFakePage(), Step{
		Name:       "AudioUploaded",
		Candidates: []SelectorSpec{CSS("#a"), CSS("#b")},
		Action:     AttachFile("/tmp/a.mp3"),
		Timeout:    10 * time.Millisecond,
		Required:   true,
	})

	if !res.IsFatal {
		t.Fatal("expected fatal result for required miss")
	}
	if !reflect.DeepEqual(captured, []string{"AudioUploaded"}) {
		t.Fatalf("captured = %v", captured)
	}
	if res.DiagnosticPath != "/diag/AudioUploaded.png" {
		t.Fatalf("diagnostic path = %q", res.DiagnosticPath)
	}
	if want := []string{"css=#a", "css=#b"}; !reflect.DeepEqual(res.Attempted, want) {
		t.Fatalf("attempted = %v, want %v", res.Attempted, want)
	}
}

func TestPerformSwallowsDiagnosticErrors(t *testing.T) {
	hook := DiagnosticFunc(func(context.Context, Page, string) (string, error) {
		return "", errors.New("disk full")
	})
	res := newTestExecutor(hook).Perform(context.Background(), newFakePage(), Step{
		Name:       "login",
		Candidates: []SelectorSpec{CSS("#email")},
		Action:     Fill("x"),
		Timeout:    5 * time.Millisecond,
		Required:   true,
	})
	if !res.IsFatal || res.DiagnosticPath != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWaitAnyAndVisible(t *testing.T) {
	page := newFakePage()
	ok := CSS(".ant-message-success")
	page.visibleAfter[ok.String()] = 2
	exec := newTestExecutor(nil)

	if _, found := exec.Visible(context.Background(), page, []SelectorSpec{ok}); found {
		t.Fatal("single round should not see a late element")
	}
	sel, found := exec.WaitAny(context.Background(), page, []SelectorSpec{CSS(".ant-message-error"), ok}, time.Second)
	if !found || sel != ok {
		t.Fatalf("WaitAny = %v, %v", sel, found)
	}
}

func TestRetryPolicyLinearBackoff(t *testing.T) {
	var waits []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}
	calls := 0
	err := policy.Do(context.Background(), func(int) error {
		calls++
		return errors.New("nope")
	})
	if err == nil || err.Error() != "nope" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
	if want := []time.Duration{2 * time.Second, 4 * time.Second}; !reflect.DeepEqual(waits, want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
}

func TestRetryPolicyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryPolicy{MaxAttempts: 5}.Do(ctx, func(int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
