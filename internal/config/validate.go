package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is structurally usable. Credentials are
// checked separately by RequireRunCredentials so inspection commands work
// without secrets.
func (c *Config) Validate() error {
	if err := c.validateHost(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateApproval(); err != nil {
		return err
	}
	if err := c.validateMail(); err != nil {
		return err
	}
	if err := c.validateDrive(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"host.login_timeout":            c.Host.LoginTimeout,
		"host.navigation_timeout":       c.Host.NavigationTimeout,
		"host.element_timeout":          c.Host.ElementTimeout,
		"retry.max_attempts":            c.Retry.MaxAttempts,
		"browser.width":                 c.Browser.Width,
		"browser.height":                c.Browser.Height,
		"drive.download_timeout":        c.Drive.DownloadTimeout,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
		"cleanup.max_age_hours":         c.Cleanup.MaxAgeHours,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateHost() error {
	parsed, err := url.Parse(c.Host.EpisodesURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("host.episodes_url must be an absolute URL, got %q", c.Host.EpisodesURL)
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.AdOption {
	case "active", "inactive":
	default:
		return fmt.Errorf("publish.ad_option must be active or inactive, got %q", c.Publish.AdOption)
	}
	switch c.Publish.EpisodeType {
	case "public", "trailer", "bonus":
	default:
		return fmt.Errorf("publish.episode_type must be public, trailer, or bonus, got %q", c.Publish.EpisodeType)
	}
	if c.Publish.TitlePrefixFormat != "" && strings.Count(c.Publish.TitlePrefixFormat, "%d") != 1 {
		return errors.New("publish.title_prefix_format must contain exactly one %d verb")
	}
	return nil
}

func (c *Config) validateApproval() error {
	if c.Approval.Port <= 0 || c.Approval.Port > 65535 {
		return fmt.Errorf("approval.port must be between 1 and 65535, got %d", c.Approval.Port)
	}
	if c.Approval.Port+c.Approval.PortScanLimit > 65535 {
		return errors.New("approval.port_scan_limit pushes the scanned range past 65535")
	}
	if c.Approval.PublicURL != "" {
		parsed, err := url.Parse(c.Approval.PublicURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("approval.public_url must be an absolute URL, got %q", c.Approval.PublicURL)
		}
	}
	return nil
}

func (c *Config) validateMail() error {
	switch c.Mail.Provider {
	case "gmail", "log":
		return nil
	default:
		return fmt.Errorf("mail.provider must be gmail or log, got %q", c.Mail.Provider)
	}
}

func (c *Config) validateDrive() error {
	switch c.Drive.Provider {
	case "google":
	case "s3":
		if c.Drive.S3Bucket == "" {
			return errors.New("drive.s3_bucket must be set when drive.provider is s3")
		}
	case "local":
		if c.Drive.LocalAudioDir == "" {
			return errors.New("drive.local_audio_dir must be set when drive.provider is local")
		}
	default:
		return fmt.Errorf("drive.provider must be google, s3, or local, got %q", c.Drive.Provider)
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "openrouter", "openai", "gemini", "none":
		return nil
	default:
		return fmt.Errorf("llm.provider must be openrouter, openai, gemini, or none, got %q", c.LLM.Provider)
	}
}

func (c *Config) validateSchedule() error {
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	return nil
}

// RequireRunCredentials reports every credential a publish run needs but does
// not have. The returned error lists all missing keys at once.
func (c *Config) RequireRunCredentials() error {
	missing := map[string]string{}
	if c.Host.Email == "" {
		missing["host.email"] = "SOUNDON_EMAIL"
	}
	if c.Host.Password == "" {
		missing["host.password"] = "SOUNDON_PASSWORD"
	}
	if c.Airtable.APIKey == "" {
		missing["airtable.api_key"] = "AIRTABLE_API_KEY"
	}
	if c.Airtable.BaseID == "" {
		missing["airtable.base_id"] = "AIRTABLE_BASE_ID"
	}
	if c.Drive.Provider == "google" && c.Drive.AudioFolderURL == "" {
		missing["drive.audio_folder_url"] = "GOOGLE_DRIVE_AUDIO_URL"
	}
	if c.Mail.Provider == "gmail" && c.Mail.Recipient == "" {
		missing["mail.recipient"] = "RECIPIENT_EMAIL"
	}
	if len(missing) == 0 {
		return nil
	}
	keys := make([]string, 0, len(missing))
	for key := range missing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s (or %s)", key, missing[key]))
	}
	return fmt.Errorf("missing required settings: %s", strings.Join(parts, ", "))
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
