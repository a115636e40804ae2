package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"podpublish/internal/logging"
)

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupRemovesStaleEntries(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	fresh := now.Add(-time.Hour)

	tempDir := filepath.Join(base, "tmp")
	diagDir := filepath.Join(base, "diag")
	touch(t, filepath.Join(tempDir, "old.mp3"), old)
	touch(t, filepath.Join(tempDir, "new.mp3"), fresh)
	touch(t, filepath.Join(diagDir, "AudioUploaded-1.png"), old)
	touch(t, filepath.Join(diagDir, "notes.txt"), old)
	logDir := filepath.Join(base, "logs")
	stale := now.AddDate(0, 0, -40)
	touch(t, filepath.Join(logDir, "podpublish-20250101.log"), stale)
	touch(t, filepath.Join(logDir, logging.LogFileName), stale)
	touch(t, filepath.Join(logDir, "podpublish-20250305.log"), fresh)

	pruner := &fakePruner{n: 3}
	report, err := Cleanup(context.Background(), CleanupOptions{
		TempDir:        tempDir,
		DiagnosticsDir: diagDir,
		LogDir:         logDir,
		MaxAge:         24 * time.Hour,
		RetentionDays:  30,
		History:        pruner,
		Now:            func() time.Time { return now },
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if report.TempRemoved != 1 || report.DiagnosticsRemoved != 1 || report.LogsRemoved != 1 || report.RunsPruned != 3 {
		t.Fatalf("report = %+v", report)
	}
	for path, want := range map[string]bool{
		filepath.Join(tempDir, "old.mp3"):                false,
		filepath.Join(tempDir, "new.mp3"):                true,
		filepath.Join(diagDir, "AudioUploaded-1.png"):    false,
		filepath.Join(diagDir, "notes.txt"):              true,
		filepath.Join(logDir, "podpublish-20250101.log"): false,
		filepath.Join(logDir, logging.LogFileName):       true,
		filepath.Join(logDir, "podpublish-20250305.log"): true,
	} {
		_, statErr := os.Stat(path)
		if exists := statErr == nil; exists != want {
			t.Errorf("%s exists = %v, want %v", path, exists, want)
		}
	}
	if want := now.AddDate(0, 0, -30); !pruner.cutoff.Equal(want) {
		t.Fatalf("prune cutoff = %v, want %v", pruner.cutoff, want)
	}
}

func TestCleanupMissingDirsAndPruneError(t *testing.T) {
	base := t.TempDir()
	pruner := &fakePruner{err: errors.New("locked")}
	_, err := Cleanup(context.Background(), CleanupOptions{
		TempDir:        filepath.Join(base, "missing"),
		DiagnosticsDir: filepath.Join(base, "also-missing"),
		MaxAge:         time.Hour,
		RetentionDays:  7,
		History:        pruner,
	}, logging.NewNop())
	if err == nil || !errors.Is(err, pruner.err) {
		t.Fatalf("err = %v, want wrapped prune error", err)
	}
}

func TestCleanupZeroRetentionKeepsHistory(t *testing.T) {
	pruner := &fakePruner{}
	if _, err := Cleanup(context.Background(), CleanupOptions{History: pruner}, logging.NewNop()); err != nil {
		t.Fatal(err)
	}
	if !pruner.cutoff.IsZero() {
		t.Fatal("history pruned with zero retention")
	}
}
