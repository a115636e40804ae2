package testsupport

import (
	"context"
	"testing"
	"time"

	"podpublish/internal/config"
	"podpublish/internal/history"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// BeginRun inserts a running row for tests.
func BeginRun(t testing.TB, store *history.Store, id, recordID string) {
	t.Helper()

	err := store.BeginRun(context.Background(), history.Run{ID: id, RecordID: recordID, Mode: "once", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("store.BeginRun: %v", err)
	}
}
