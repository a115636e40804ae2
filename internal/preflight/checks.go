package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sys/unix"

	"podpublish/internal/config"
	"podpublish/internal/services/llm"
	"podpublish/internal/ui"
)

// Pinger is satisfied by the Airtable client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckLLM verifies that the LLM API is reachable and the key is valid. A
// disabled provider passes as optional since runs fall back to fixed copy.
// It uses a 30-second timeout and a single attempt.
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var completer llm.Completer
	switch strings.ToLower(cfg.Provider) {
	case "", llm.ProviderOpenRouter:
		if cfg.APIKey == "" {
			return Result{Name: name, Passed: true, Optional: true, Detail: "disabled (no API key); fallback titles"}
		}
		completer = llm.NewClient(llm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Referer: cfg.Referer,
			Title:   cfg.Title,
		}, llm.WithRetryMaxAttempts(1))
	default:
		c, err := llm.New(checkCtx, cfg)
		if errors.Is(err, llm.ErrDisabled) {
			return Result{Name: name, Passed: true, Optional: true, Detail: "disabled; fallback titles"}
		}
		if err != nil {
			return Result{Name: name, Optional: true, Detail: err.Error()}
		}
		completer = c
	}

	if err := completer.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Optional: true, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API reachable (%s)", completer.Model())}
}

// CheckAirtable verifies the tracking table is reachable.
func CheckAirtable(ctx context.Context, client Pinger) Result {
	const name = "Airtable"
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckS3Bucket verifies the default AWS credential chain can see bucket.
func CheckS3Bucket(ctx context.Context, bucket string) Result {
	const name = "S3 bucket"
	if strings.TrimSpace(bucket) == "" {
		return Result{Name: name, Detail: "drive.s3_bucket not set"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("aws config (%v)", err)}
	}
	client := s3.NewFromConfig(awsCfg)
	if _, err := client.HeadBucket(checkCtx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%v)", bucket, err)}
	}
	return Result{Name: name, Passed: true, Detail: bucket}
}

// CheckSelectors loads the selector catalog with any override applied.
func CheckSelectors(overridePath string) Result {
	const name = "Selector catalog"
	catalog, err := ui.LoadCatalog(overridePath)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	source := "embedded"
	if strings.TrimSpace(overridePath) != "" {
		source = overridePath
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d selectors (%s)", len(catalog), source)}
}

// CheckCredentials reports missing host, Airtable and mail settings.
func CheckCredentials(cfg *config.Config) Result {
	const name = "Credentials"
	if err := cfg.RequireRunCredentials(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "host, airtable and mail settings present"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
