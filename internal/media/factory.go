package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"podpublish/internal/config"
	"podpublish/internal/services"
)

// Provider names accepted in drive.provider.
const (
	ProviderGoogle = "google"
	ProviderS3     = "s3"
	ProviderLocal  = "local"
)

// FromConfig builds the provider selected by cfg.Drive.Provider. googleClient
// is only consulted for the google provider.
func FromConfig(ctx context.Context, cfg *config.Config, googleClient *http.Client, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "media", "provider", "config is nil", nil)
	}
	timeout := cfg.DownloadTimeout()
	switch cfg.Drive.Provider {
	case ProviderGoogle, "":
		provider, err := NewDriveProvider(ctx, googleClient, DriveOptions{
			AudioFolder: cfg.Drive.AudioFolderURL,
			CoverFolder: cfg.Drive.CoverFolderURL,
			TempDir:     cfg.Paths.TempDir,
			Timeout:     timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case ProviderS3:
		provider, err := NewS3ProviderFromEnv(ctx, S3Options{
			Bucket:      cfg.Drive.S3Bucket,
			AudioPrefix: cfg.Drive.S3AudioPrefix,
			CoverPrefix: cfg.Drive.S3CoverPrefix,
			TempDir:     cfg.Paths.TempDir,
			Timeout:     timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case ProviderLocal:
		return NewLocalProvider(LocalOptions{
			AudioDir: cfg.Drive.LocalAudioDir,
			CoverDir: cfg.Drive.LocalCoverDir,
			TempDir:  cfg.Paths.TempDir,
		}, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "media", "provider", fmt.Sprintf("unknown provider %q", cfg.Drive.Provider), nil)
	}
}
