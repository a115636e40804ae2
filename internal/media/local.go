package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"podpublish/internal/logging"
	"podpublish/internal/services"
)

// LocalOptions configures LocalProvider.
type LocalOptions struct {
	AudioDir string
	CoverDir string
	TempDir  string
}

// LocalProvider copies the newest matching file out of a directory. Source
// files are never modified, so fixture directories survive cleanup.
type LocalProvider struct {
	opts   LocalOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewLocalProvider constructs a LocalProvider.
func NewLocalProvider(opts LocalOptions, logger *slog.Logger) *LocalProvider {
	return &LocalProvider{opts: opts, logger: logging.NewComponentLogger(logger, "media"), now: time.Now}
}

// FetchLatestAudio copies the newest audio file from AudioDir.
func (p *LocalProvider) FetchLatestAudio(ctx context.Context) (string, error) {
	return p.fetch(ctx, KindAudio, p.opts.AudioDir)
}

// FetchLatestCoverImage copies the newest image from CoverDir. An unset
// CoverDir reports ErrNotFound.
func (p *LocalProvider) FetchLatestCoverImage(ctx context.Context) (string, error) {
	return p.fetch(ctx, KindCover, p.opts.CoverDir)
}

func (p *LocalProvider) fetch(ctx context.Context, kind Kind, dir string) (string, error) {
	if dir == "" {
		return "", notFound("unset directory", kind)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "media", "fetch "+string(kind), "read source directory", err)
	}
	var (
		newestName string
		newestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !kind.Matches(entry.Name(), "") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newestName == "" || info.ModTime().After(newestTime) {
			newestName, newestTime = entry.Name(), info.ModTime()
		}
	}
	if newestName == "" {
		return "", notFound(dir, kind)
	}
	src, err := os.Open(filepath.Join(dir, newestName))
	if err != nil {
		return "", fetchFailed(kind, err)
	}
	defer src.Close()

	path, size, err := writeAtomic(ctx, p.opts.TempDir, localName(kind, newestName, p.now()), src)
	if err != nil {
		return "", fetchFailed(kind, fmt.Errorf("copy %s: %w", newestName, err))
	}
	logging.WithContext(ctx, p.logger).Info("media copied",
		logging.String("kind", string(kind)),
		logging.String("source", "local"),
		logging.String("name", newestName),
		logging.Int64("size_bytes", size),
		logging.String("local_path", path),
	)
	return path, nil
}
