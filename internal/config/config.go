package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directories.
type Paths struct {
	TempDir        string `toml:"temp_dir"`
	LogDir         string `toml:"log_dir"`
	ProfileDir     string `toml:"profile_dir"`
	DiagnosticsDir string `toml:"diagnostics_dir"`
	StateDir       string `toml:"state_dir"`
}

// Host describes the podcast host dashboard and its credentials. Timeouts are
// in milliseconds to match the environment variables they fall back to.
type Host struct {
	EpisodesURL       string `toml:"episodes_url"`
	Email             string `toml:"email"`
	Password          string `toml:"password"`
	SelectorsFile     string `toml:"selectors_file"`
	LoginTimeout      int    `toml:"login_timeout"`
	NavigationTimeout int    `toml:"navigation_timeout"`
	ElementTimeout    int    `toml:"element_timeout"`
	SettleMS          int    `toml:"settle_ms"`
}

// Browser controls the Chrome instance driven by chromedp.
type Browser struct {
	Headless bool   `toml:"headless"`
	Width    int    `toml:"width"`
	Height   int    `toml:"height"`
	ExecPath string `toml:"exec_path"`
}

// Retry configures the linear retry policy used by login and UI actions.
type Retry struct {
	MaxAttempts int `toml:"max_attempts"`
	BackoffMS   int `toml:"backoff_ms"`
}

// Publish holds episode form choices.
type Publish struct {
	AdOption              string `toml:"ad_option"`
	EpisodeType           string `toml:"episode_type"`
	TitlePrefixFormat     string `toml:"title_prefix_format"`
	MaxTitleRunes         int    `toml:"max_title_runes"`
	FallbackEpisodeNumber int    `toml:"fallback_episode_number"`
}

// Approval configures the title-selection rendezvous listener.
type Approval struct {
	Port           int    `toml:"port"`
	PortScanLimit  int    `toml:"port_scan_limit"`
	PublicURL      string `toml:"public_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	BindHost       string `toml:"bind_host"`
}

// Mail configures delivery of approval requests.
type Mail struct {
	Provider        string `toml:"provider"`
	Recipient       string `toml:"recipient"`
	Sender          string `toml:"sender"`
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`
}

// Drive selects where audio and cover files are fetched from.
type Drive struct {
	Provider        string `toml:"provider"`
	AudioFolderURL  string `toml:"audio_folder_url"`
	CoverFolderURL  string `toml:"cover_folder_url"`
	S3Bucket        string `toml:"s3_bucket"`
	S3AudioPrefix   string `toml:"s3_audio_prefix"`
	S3CoverPrefix   string `toml:"s3_cover_prefix"`
	LocalAudioDir   string `toml:"local_audio_dir"`
	LocalCoverDir   string `toml:"local_cover_dir"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// Airtable contains the tracking-store connection.
type Airtable struct {
	APIKey  string `toml:"api_key"`
	BaseID  string `toml:"base_id"`
	Table   string `toml:"table"`
	BaseURL string `toml:"base_url"`
}

// LLM contains content-generation connection settings.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	FallbackModel  string `toml:"fallback_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Schedule configures the scheduled run mode.
type Schedule struct {
	Cron       string `toml:"cron"`
	RunOnStart bool   `toml:"run_on_start"`
}

// Cleanup configures the cleanup run mode.
type Cleanup struct {
	MaxAgeHours int `toml:"max_age_hours"`
}

// Trigger configures the webhook trigger server.
type Trigger struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for podpublish.
//
// Configuration sections by subsystem:
//   - Paths: temp, log, browser profile, diagnostics, and state directories
//   - Host: dashboard URL, credentials, selector overrides, UI timeouts
//   - Browser: headless mode and viewport
//   - Retry: login and action retry policy
//   - Publish: episode form choices and title prefix
//   - Approval: title-selection listener and deadline
//   - Mail: approval email delivery
//   - Drive: audio and cover source
//   - Airtable: tracking store
//   - LLM: content generation
//   - Schedule, Cleanup, Trigger: run modes
//   - Notifications: ntfy outcome notifications
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Host          Host          `toml:"host"`
	Browser       Browser       `toml:"browser"`
	Retry         Retry         `toml:"retry"`
	Publish       Publish       `toml:"publish"`
	Approval      Approval      `toml:"approval"`
	Mail          Mail          `toml:"mail"`
	Drive         Drive         `toml:"drive"`
	Airtable      Airtable      `toml:"airtable"`
	LLM           LLM           `toml:"llm"`
	Schedule      Schedule      `toml:"schedule"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Trigger       Trigger       `toml:"trigger"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and env fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	loadDotEnv(filepath.Dir(resolvedPath))

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podpublish.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working directories a run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TempDir, c.Paths.LogDir, c.Paths.ProfileDir, c.Paths.DiagnosticsDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ChromeBinary returns the configured Chrome executable, or the default
// lookup name when unset.
func (c *Config) ChromeBinary() string {
	if p := strings.TrimSpace(c.Browser.ExecPath); p != "" {
		return p
	}
	return "google-chrome"
}

// HistoryPath returns the run-history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// CookiesPath returns the file the host session cookies are saved to.
func (c *Config) CookiesPath() string {
	return filepath.Join(c.Paths.StateDir, "host-cookies.json")
}

// LoginTimeout returns host.login_timeout as a duration.
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Host.LoginTimeout) * time.Millisecond
}

// NavigationTimeout returns host.navigation_timeout as a duration.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Host.NavigationTimeout) * time.Millisecond
}

// ElementTimeout returns host.element_timeout as a duration.
func (c *Config) ElementTimeout() time.Duration {
	return time.Duration(c.Host.ElementTimeout) * time.Millisecond
}

// SettleInterval returns host.settle_ms as a duration.
func (c *Config) SettleInterval() time.Duration {
	return time.Duration(c.Host.SettleMS) * time.Millisecond
}

// RetryBackoff returns retry.backoff_ms as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Retry.BackoffMS) * time.Millisecond
}

// ApprovalTimeout returns the approval deadline. Zero means resolve immediately.
func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.Approval.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns drive.download_timeout as a duration.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Drive.DownloadTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the LLM settings handed to completer constructors.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	FallbackModel  string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the content-generation connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		FallbackModel:  strings.TrimSpace(c.LLM.FallbackModel),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
