package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"podpublish/internal/config"
)

// clearEnv blanks every variable the loader consults so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SOUNDON_EMAIL", "SOUNDON_PASSWORD", "AIRTABLE_API_KEY", "AIRTABLE_BASE_ID",
		"OPENROUTER_API_KEY", "OPENROUTER_SITE_URL", "OPENROUTER_SITE_NAME", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"GOOGLE_DRIVE_AUDIO_URL", "GOOGLE_DRIVE_COVER_URL", "RECIPIENT_EMAIL",
		"PLAYWRIGHT_HEADLESS", "HEADLESS", "UPLOAD_SCHEDULE", "PUBLIC_URL",
		"WEB_CONSOLE_PORT", "WEBHOOK_PORT", "NAVIGATION_TIMEOUT", "ELEMENT_WAIT_TIMEOUT",
		"LOGIN_TIMEOUT", "RETRY_DELAY_BASE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantTemp := filepath.Join(tempHome, ".local", "share", "podpublish", "temp")
	if cfg.Paths.TempDir != wantTemp {
		t.Fatalf("unexpected temp dir: got %q want %q", cfg.Paths.TempDir, wantTemp)
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless browser by default")
	}
	if cfg.Publish.AdOption != "inactive" {
		t.Fatalf("unexpected ad option: %q", cfg.Publish.AdOption)
	}
	if cfg.Approval.Port != 3000 || cfg.ApprovalTimeout() != 2*time.Minute {
		t.Fatalf("unexpected approval defaults: port=%d timeout=%s", cfg.Approval.Port, cfg.ApprovalTimeout())
	}
	if cfg.LoginTimeout() != time.Minute {
		t.Fatalf("unexpected login timeout: %s", cfg.LoginTimeout())
	}
	if cfg.LLM.Model != "google/gemini-2.5-flash" || cfg.LLM.FallbackModel != "anthropic/claude-3.7-sonnet" {
		t.Fatalf("unexpected llm models: %q / %q", cfg.LLM.Model, cfg.LLM.FallbackModel)
	}
	if cfg.HistoryPath() != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
	if err := cfg.RequireRunCredentials(); err == nil {
		t.Fatal("expected missing credentials error for default config")
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "podpublish.toml")
	contents := `
[paths]
temp_dir = "` + filepath.Join(dir, "tmp") + `"

[host]
email = "host@example.com"
password = "secret"
settle_ms = 0

[approval]
timeout_seconds = 0

[drive]
provider = "local"
local_audio_dir = "` + filepath.Join(dir, "audio") + `"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.TempDir != filepath.Join(dir, "tmp") {
		t.Fatalf("temp dir not applied: %q", cfg.Paths.TempDir)
	}
	if cfg.ApprovalTimeout() != 0 {
		t.Fatalf("expected zero approval timeout, got %s", cfg.ApprovalTimeout())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	if cfg.Host.Email != "host@example.com" {
		t.Fatalf("unexpected host email %q", cfg.Host.Email)
	}
}

func TestFileValuesWinOverEnvFallbacks(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "podpublish.toml")

	type payload struct {
		Host struct {
			Email string `toml:"email"`
		} `toml:"host"`
		Airtable struct {
			APIKey string `toml:"api_key"`
		} `toml:"airtable"`
	}
	custom := payload{}
	custom.Host.Email = "file@example.com"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("SOUNDON_EMAIL", "env@example.com")
	t.Setenv("AIRTABLE_API_KEY", "env-airtable")
	t.Setenv("OPENROUTER_API_KEY", "env-openrouter")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Host.Email != "file@example.com" {
		t.Errorf("expected file email to win, got %q", cfg.Host.Email)
	}
	if cfg.Airtable.APIKey != "env-airtable" {
		t.Errorf("expected airtable key from env, got %q", cfg.Airtable.APIKey)
	}
	if cfg.LLM.APIKey != "env-openrouter" {
		t.Errorf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
}

func TestEnvOverridesTimingAndHeadless(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PLAYWRIGHT_HEADLESS", "false")
	t.Setenv("NAVIGATION_TIMEOUT", "15000")
	t.Setenv("RETRY_DELAY_BASE", "500")
	t.Setenv("UPLOAD_SCHEDULE", "30 8 * * 1-5")
	t.Setenv("WEBHOOK_PORT", "9090")
	t.Setenv("PUBLIC_URL", "https://approve.example.com/")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Browser.Headless {
		t.Error("expected headless disabled by env")
	}
	if cfg.NavigationTimeout() != 15*time.Second {
		t.Errorf("navigation timeout = %s", cfg.NavigationTimeout())
	}
	if cfg.RetryBackoff() != 500*time.Millisecond {
		t.Errorf("retry backoff = %s", cfg.RetryBackoff())
	}
	if cfg.Schedule.Cron != "30 8 * * 1-5" {
		t.Errorf("cron = %q", cfg.Schedule.Cron)
	}
	if cfg.Trigger.Bind != "127.0.0.1:9090" {
		t.Errorf("trigger bind = %q", cfg.Trigger.Bind)
	}
	if cfg.Approval.PublicURL != "https://approve.example.com" {
		t.Errorf("public url = %q", cfg.Approval.PublicURL)
	}
}

func TestDotEnvNextToConfigIsLoaded(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("AIRTABLE_BASE_ID")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "podpublish.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AIRTABLE_BASE_ID=appDOTENV\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("AIRTABLE_BASE_ID") })

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Airtable.BaseID != "appDOTENV" {
		t.Fatalf("expected base id from .env, got %q", cfg.Airtable.BaseID)
	}
}

func TestCreateSample(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[approval]") {
		t.Fatal("sample config missing approval section")
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"ad option", func(c *config.Config) { c.Publish.AdOption = "sometimes" }, "publish.ad_option"},
		{"episode type", func(c *config.Config) { c.Publish.EpisodeType = "movie" }, "publish.episode_type"},
		{"prefix verb", func(c *config.Config) { c.Publish.TitlePrefixFormat = "EP - " }, "title_prefix_format"},
		{"approval port", func(c *config.Config) { c.Approval.Port = 70000 }, "approval.port"},
		{"drive provider", func(c *config.Config) { c.Drive.Provider = "ftp" }, "drive.provider"},
		{"s3 bucket", func(c *config.Config) { c.Drive.Provider = "s3" }, "drive.s3_bucket"},
		{"llm provider", func(c *config.Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"cron", func(c *config.Config) { c.Schedule.Cron = "every day" }, "schedule.cron"},
		{"retry attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"episodes url", func(c *config.Config) { c.Host.EpisodesURL = "episodes" }, "host.episodes_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequireRunCredentialsListsEveryMissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.Host.Email = "a@example.com"
	err := cfg.RequireRunCredentials()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"host.password", "airtable.api_key", "SOUNDON_PASSWORD"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if strings.Contains(err.Error(), "host.email") {
		t.Errorf("error should not mention configured email: %q", err)
	}
}
