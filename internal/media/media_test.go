package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"podpublish/internal/services"
)

func TestEnsureExtension(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want string
	}{
		{name: "episode.mp3", kind: KindAudio, want: "episode.mp3"},
		{name: "episode.M4A", kind: KindAudio, want: "episode.M4A"},
		{name: "episode", kind: KindAudio, want: "episode.mp3"},
		{name: "cover", kind: KindCover, want: "cover.png"},
		{name: "cover.jpeg", kind: KindCover, want: "cover.jpeg"},
		{name: "cover.mp3", kind: KindCover, want: "cover.mp3.png"},
	}
	for _, tt := range tests {
		if got := EnsureExtension(tt.name, tt.kind); got != tt.want {
			t.Errorf("EnsureExtension(%q, %s) = %q, want %q", tt.name, tt.kind, got, tt.want)
		}
	}
}

func TestKindMatches(t *testing.T) {
	if !KindAudio.Matches("no-extension", "audio/mpeg") {
		t.Error("audio MIME type should match")
	}
	if !KindCover.Matches("art.JPG", "") {
		t.Error("jpg extension should match cover")
	}
	if KindAudio.Matches("notes.txt", "text/plain") {
		t.Error("text file should not match audio")
	}
}

func TestWriteAtomicLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path, n, err := writeAtomic(context.Background(), dir, "a.mp3", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("writeAtomic: %v", err)
	}
	if n != 4 || filepath.Base(path) != "a.mp3" {
		t.Fatalf("path=%s n=%d", path, n)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file still present: %v", err)
	}
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "par"), nil
	}
	return 0, errors.New("connection reset")
}

func TestWriteAtomicRemovesPartialOnError(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := writeAtomic(context.Background(), dir, "b.mp3", &failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("dir not empty: %v", entries)
	}
}

func TestWriteAtomicRejectsEmptyAndCancelled(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := writeAtomic(context.Background(), dir, "empty.mp3", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty download")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := writeAtomic(ctx, dir, "c.mp3", strings.NewReader("data"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLocalProviderPicksNewest(t *testing.T) {
	src := t.TempDir()
	tmp := t.TempDir()
	writeFile(t, filepath.Join(src, "old.mp3"), "old", time.Now().Add(-2*time.Hour))
	writeFile(t, filepath.Join(src, "new.mp3"), "new", time.Now().Add(-time.Minute))
	writeFile(t, filepath.Join(src, "newest.txt"), "txt", time.Now())

	p := NewLocalProvider(LocalOptions{AudioDir: src, TempDir: tmp}, nil)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	path, err := p.FetchLatestAudio(context.Background())
	if err != nil {
		t.Fatalf("FetchLatestAudio: %v", err)
	}
	if filepath.Dir(path) != tmp || filepath.Base(path) != "audio-20260102-030405-new.mp3" {
		t.Fatalf("path = %s", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Fatalf("content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(src, "new.mp3")); err != nil {
		t.Fatalf("source removed: %v", err)
	}
}

func TestLocalProviderMissingCover(t *testing.T) {
	p := NewLocalProvider(LocalOptions{AudioDir: t.TempDir(), TempDir: t.TempDir()}, nil)
	_, err := p.FetchLatestCoverImage(context.Background())
	if !errors.Is(err, services.ErrNotFound) || !errors.Is(err, ErrNoFiles) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	_, err = p.FetchLatestAudio(context.Background())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("empty dir err = %v", err)
	}
}

func writeFile(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}
