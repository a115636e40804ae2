package services_test

import (
	"context"
	"testing"

	"podpublish/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithStep(ctx, "AudioUploaded")
	ctx = services.WithRecordID(ctx, "rec42")
	ctx = services.WithMode(ctx, "once")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "AudioUploaded" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if rec, ok := services.RecordIDFromContext(ctx); !ok || rec != "rec42" {
		t.Fatalf("unexpected record id: %v %v", rec, ok)
	}
	if mode, ok := services.ModeFromContext(ctx); !ok || mode != "once" {
		t.Fatalf("unexpected mode: %v %v", mode, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
}
