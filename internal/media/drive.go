package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"podpublish/internal/logging"
	"podpublish/internal/services"
)

// DriveOptions configures DriveProvider. Folder values may be share URLs or
// bare folder IDs.
type DriveOptions struct {
	AudioFolder string
	CoverFolder string
	TempDir     string
	Timeout     time.Duration
}

// DriveProvider downloads from Google Drive folders through the v3 API.
type DriveProvider struct {
	svc    *drive.Service
	opts   DriveOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewDriveProvider builds a Drive client over an authorized HTTP client.
// Extra options are appended after the HTTP client option.
func NewDriveProvider(ctx context.Context, client *http.Client, opts DriveOptions, logger *slog.Logger, extra ...option.ClientOption) (*DriveProvider, error) {
	if client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "media", "drive client", "no authorized http client", nil)
	}
	clientOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "media", "drive client", "create drive service", err)
	}
	return &DriveProvider{
		svc:    svc,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "media"),
		now:    time.Now,
	}, nil
}

// FetchLatestAudio downloads the most recently modified audio file.
func (p *DriveProvider) FetchLatestAudio(ctx context.Context) (string, error) {
	return p.fetch(ctx, KindAudio, p.opts.AudioFolder)
}

// FetchLatestCoverImage downloads the most recently modified image.
func (p *DriveProvider) FetchLatestCoverImage(ctx context.Context) (string, error) {
	return p.fetch(ctx, KindCover, p.opts.CoverFolder)
}

func (p *DriveProvider) fetch(ctx context.Context, kind Kind, folder string) (string, error) {
	folderID := ParseFolderID(folder)
	if folderID == "" {
		return "", services.Wrap(services.ErrConfiguration, "media", "fetch "+string(kind), "drive folder not configured", nil)
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, p.logger)

	list, err := p.svc.Files.List().
		Q(folderQuery(folderID, kind)).
		OrderBy("modifiedTime desc").
		PageSize(20).
		Fields("files(id,name,mimeType,size,modifiedTime)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fetchFailed(kind, fmt.Errorf("list folder: %w", err))
	}
	var chosen *drive.File
	for _, file := range list.Files {
		if kind.Matches(file.Name, file.MimeType) {
			chosen = file
			break
		}
	}
	if chosen == nil {
		return "", notFound("drive folder "+folderID, kind)
	}

	resp, err := p.svc.Files.Get(chosen.Id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return "", fetchFailed(kind, fmt.Errorf("download %s: %w", chosen.Name, err))
	}
	defer resp.Body.Close()

	path, size, err := writeAtomic(ctx, p.opts.TempDir, localName(kind, chosen.Name, p.now()), resp.Body)
	if err != nil {
		return "", fetchFailed(kind, err)
	}
	logger.Info("media downloaded",
		logging.String("kind", string(kind)),
		logging.String("source", "drive"),
		logging.String("name", chosen.Name),
		logging.String("modified", chosen.ModifiedTime),
		logging.Int64("size_bytes", size),
		logging.String("local_path", path),
	)
	return path, nil
}

func folderQuery(folderID string, kind Kind) string {
	clauses := []string{fmt.Sprintf("mimeType contains '%s'", kindMIMEPrefix[kind])}
	for _, ext := range kindExtensions[kind] {
		clauses = append(clauses, fmt.Sprintf("name contains '%s'", ext))
	}
	return fmt.Sprintf("'%s' in parents and trashed=false and (%s)", strings.ReplaceAll(folderID, "'", `\'`), strings.Join(clauses, " or "))
}

// ParseFolderID extracts a Drive folder ID from a share URL. Values that are
// not URLs are returned trimmed.
func ParseFolderID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.Contains(value, "://") {
		return value
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return ""
	}
	if id := parsed.Query().Get("id"); id != "" {
		return id
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, segment := range segments {
		if segment == "folders" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
