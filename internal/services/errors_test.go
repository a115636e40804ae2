package services_test

import (
	"errors"
	"strings"
	"testing"

	"podpublish/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "AudioUploaded", "attach", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"AudioUploaded", "attach", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestFailureOutcomeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Outcome
	}{
		{"validation", services.Wrap(services.ErrValidation, "content", "generate", "empty", nil), services.OutcomeNeedsReview},
		{"configuration", services.Wrap(services.ErrConfiguration, "host", "login", "missing password", nil), services.OutcomeNeedsReview},
		{"required step", services.Wrap(services.ErrStepRequired, "Published", "click", "not found", nil), services.OutcomeFailed},
		{"nil", nil, services.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.FailureOutcome(tt.err); got != tt.want {
				t.Fatalf("FailureOutcome() = %s, want %s", got, tt.want)
			}
		})
	}
}
