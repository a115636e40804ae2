package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podpublish/internal/services"
	"podpublish/internal/textutil"
)

// Provider fetches the newest audio and cover files and returns local paths.
type Provider interface {
	FetchLatestAudio(ctx context.Context) (string, error)
	FetchLatestCoverImage(ctx context.Context) (string, error)
}

// Kind selects which family of files a lookup matches.
type Kind string

const (
	KindAudio Kind = "audio"
	KindCover Kind = "cover"
)

var kindExtensions = map[Kind][]string{
	KindAudio: {".mp3", ".m4a", ".wav", ".aac"},
	KindCover: {".png", ".jpg", ".jpeg"},
}

var kindDefaultExtension = map[Kind]string{
	KindAudio: ".mp3",
	KindCover: ".png",
}

var kindMIMEPrefix = map[Kind]string{
	KindAudio: "audio/",
	KindCover: "image/",
}

// ErrNoFiles marks an empty source folder.
var ErrNoFiles = errors.New("no matching files")

// Matches reports whether a remote object belongs to kind, judged by its
// MIME type first and its extension second.
func (k Kind) Matches(name, mimeType string) bool {
	if prefix := kindMIMEPrefix[k]; prefix != "" && strings.HasPrefix(strings.ToLower(mimeType), prefix) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range kindExtensions[k] {
		if ext == candidate {
			return true
		}
	}
	return false
}

// EnsureExtension appends the kind's default extension when name has no
// recognized one.
func EnsureExtension(name string, kind Kind) string {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range kindExtensions[kind] {
		if ext == candidate {
			return name
		}
	}
	return name + kindDefaultExtension[kind]
}

// localName builds a collision-free temp file name for a remote object.
func localName(kind Kind, remoteName string, now time.Time) string {
	base := textutil.SanitizeFileName(filepath.Base(remoteName))
	if base == "" || base == "." {
		base = string(kind)
	}
	return fmt.Sprintf("%s-%s-%s", kind, now.UTC().Format("20060102-150405"), EnsureExtension(base, kind))
}

// writeAtomic copies src into dir/name through dir/name.part. The partial
// file is removed on any error.
func writeAtomic(ctx context.Context, dir, name string, src io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}
	final := filepath.Join(dir, name)
	part := final + ".part"
	file, err := os.Create(part)
	if err != nil {
		return "", 0, fmt.Errorf("create partial file: %w", err)
	}
	written, copyErr := io.Copy(file, contextReader{ctx: ctx, r: src})
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && written == 0 {
		copyErr = errors.New("downloaded file is empty")
	}
	if copyErr != nil {
		_ = os.Remove(part)
		return "", 0, fmt.Errorf("write %s: %w", name, copyErr)
	}
	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return "", 0, fmt.Errorf("finalize %s: %w", name, err)
	}
	return final, written, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func notFound(source string, kind Kind) error {
	return services.Wrap(services.ErrNotFound, "media", "fetch "+string(kind), "no "+string(kind)+" file in "+source, ErrNoFiles)
}

func fetchFailed(kind Kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "media", "fetch "+string(kind), "download interrupted", err)
	}
	return services.Wrap(services.ErrExternalTool, "media", "fetch "+string(kind), "download failed", err)
}
