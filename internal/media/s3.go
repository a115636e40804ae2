package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"podpublish/internal/logging"
	"podpublish/internal/services"
)

// S3API is the subset of the S3 client used by S3Provider.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures S3Provider.
type S3Options struct {
	Bucket      string
	AudioPrefix string
	CoverPrefix string
	TempDir     string
	Timeout     time.Duration
}

// S3Provider downloads the newest object under a prefix.
type S3Provider struct {
	client S3API
	opts   S3Options
	logger *slog.Logger
	now    func() time.Time
}

// NewS3Provider wraps an existing client.
func NewS3Provider(client S3API, opts S3Options, logger *slog.Logger) *S3Provider {
	return &S3Provider{
		client: client,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "media"),
		now:    time.Now,
	}
}

// NewS3ProviderFromEnv loads the default AWS credential chain.
func NewS3ProviderFromEnv(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "media", "s3 client", "load aws config", err)
	}
	return NewS3Provider(s3.NewFromConfig(awsCfg), opts, logger), nil
}

// FetchLatestAudio downloads the newest audio object under the audio prefix.
func (p *S3Provider) FetchLatestAudio(ctx context.Context) (string, error) {
	return p.fetch(ctx, KindAudio, p.opts.AudioPrefix)
}

// FetchLatestCoverImage downloads the newest image under the cover prefix.
func (p *S3Provider) FetchLatestCoverImage(ctx context.Context) (string, error) {
	return p.fetch(ctx, KindCover, p.opts.CoverPrefix)
}

func (p *S3Provider) fetch(ctx context.Context, kind Kind, prefix string) (string, error) {
	if strings.TrimSpace(p.opts.Bucket) == "" {
		return "", services.Wrap(services.ErrConfiguration, "media", "fetch "+string(kind), "s3 bucket not configured", nil)
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, p.logger)

	newest, err := p.newest(ctx, kind, prefix)
	if err != nil {
		return "", fetchFailed(kind, err)
	}
	if newest == nil {
		return "", notFound(fmt.Sprintf("s3://%s/%s", p.opts.Bucket, prefix), kind)
	}
	key := aws.ToString(newest.Key)

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fetchFailed(kind, fmt.Errorf("S3 GetObject %s: %w", key, err))
	}
	defer out.Body.Close()

	path, size, err := writeAtomic(ctx, p.opts.TempDir, localName(kind, key, p.now()), out.Body)
	if err != nil {
		return "", fetchFailed(kind, err)
	}
	logger.Info("media downloaded",
		logging.String("kind", string(kind)),
		logging.String("source", "s3"),
		logging.String("name", key),
		logging.Int64("size_bytes", size),
		logging.String("local_path", path),
	)
	return path, nil
}

func (p *S3Provider) newest(ctx context.Context, kind Kind, prefix string) (*types.Object, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.opts.Bucket),
		Prefix: aws.String(prefix),
	})
	var newest *types.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 ListObjectsV2: %w", err)
		}
		for i := range page.Contents {
			obj := page.Contents[i]
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") || !kind.Matches(key, "") {
				continue
			}
			if newest == nil || aws.ToTime(obj.LastModified).After(aws.ToTime(newest.LastModified)) {
				newest = &obj
			}
		}
	}
	return newest, nil
}
