package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"podpublish/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Credentials are filled with placeholders so Validate passes, mail goes to
// the log notifier, and media comes from a local directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ProfileDir = filepath.Join(base, "profile")
	cfgVal.Paths.DiagnosticsDir = filepath.Join(base, "diagnostics")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Host.EpisodesURL = "https://host.test/podcasts/1/episodes"
	cfgVal.Host.Email = "host@example.com"
	cfgVal.Host.Password = "test"
	cfgVal.Airtable.APIKey = "test"
	cfgVal.Airtable.BaseID = "apptest"
	cfgVal.Mail.Provider = "log"
	cfgVal.Drive.Provider = "local"
	cfgVal.Drive.LocalAudioDir = filepath.Join(base, "audio")
	cfgVal.Drive.LocalCoverDir = filepath.Join(base, "covers")
	cfgVal.LLM.Provider = "none"
	cfgVal.Trigger.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithApprovalTimeout sets approval.timeout_seconds.
func WithApprovalTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Approval.TimeoutSeconds = seconds
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffprobe and chromium are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffprobe", "chromium"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TempDir)
}
