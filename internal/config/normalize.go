package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv reads .env from the working directory and the config directory.
// Variables already present in the environment are never overwritten.
func loadDotEnv(configDir string) {
	candidates := []string{".env"}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeHost(); err != nil {
		return err
	}
	c.normalizeBrowser()
	c.normalizeRetry()
	c.normalizePublish()
	c.normalizeApproval()
	if err := c.normalizeMail(); err != nil {
		return err
	}
	if err := c.normalizeDrive(); err != nil {
		return err
	}
	c.normalizeAirtable()
	c.normalizeLLM()
	c.normalizeSchedule()
	c.normalizeTrigger()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.temp_dir", &c.Paths.TempDir, defaultTempDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.profile_dir", &c.Paths.ProfileDir, defaultProfileDir},
		{"paths.diagnostics_dir", &c.Paths.DiagnosticsDir, defaultDiagnosticsDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeHost() error {
	c.Host.EpisodesURL = strings.TrimSpace(c.Host.EpisodesURL)
	if c.Host.EpisodesURL == "" {
		c.Host.EpisodesURL = defaultEpisodesURL
	}
	c.Host.Email = envFallback(c.Host.Email, "SOUNDON_EMAIL")
	c.Host.Password = envFallback(c.Host.Password, "SOUNDON_PASSWORD")
	if strings.TrimSpace(c.Host.SelectorsFile) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Host.SelectorsFile))
		if err != nil {
			return fmt.Errorf("host.selectors_file: %w", err)
		}
		c.Host.SelectorsFile = expanded
	}
	c.Host.LoginTimeout = envInt("LOGIN_TIMEOUT", c.Host.LoginTimeout)
	c.Host.NavigationTimeout = envInt("NAVIGATION_TIMEOUT", c.Host.NavigationTimeout)
	c.Host.ElementTimeout = envInt("ELEMENT_WAIT_TIMEOUT", c.Host.ElementTimeout)
	if c.Host.LoginTimeout <= 0 {
		c.Host.LoginTimeout = defaultLoginTimeoutMS
	}
	if c.Host.NavigationTimeout <= 0 {
		c.Host.NavigationTimeout = defaultNavigationTimeoutMS
	}
	if c.Host.ElementTimeout <= 0 {
		c.Host.ElementTimeout = defaultElementTimeoutMS
	}
	if c.Host.SettleMS < 0 {
		c.Host.SettleMS = 0
	}
	return nil
}

func (c *Config) normalizeBrowser() {
	for _, key := range []string{"PLAYWRIGHT_HEADLESS", "HEADLESS"} {
		if value, ok := os.LookupEnv(key); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				c.Browser.Headless = parsed
			}
			break
		}
	}
	if c.Browser.Width <= 0 {
		c.Browser.Width = defaultBrowserWidth
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = defaultBrowserHeight
	}
	c.Browser.ExecPath = strings.TrimSpace(c.Browser.ExecPath)
}

func (c *Config) normalizeRetry() {
	c.Retry.BackoffMS = envInt("RETRY_DELAY_BASE", c.Retry.BackoffMS)
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	if c.Retry.BackoffMS < 0 {
		c.Retry.BackoffMS = 0
	}
}

func (c *Config) normalizePublish() {
	c.Publish.AdOption = strings.ToLower(strings.TrimSpace(c.Publish.AdOption))
	if c.Publish.AdOption == "" {
		c.Publish.AdOption = defaultAdOption
	}
	c.Publish.EpisodeType = strings.ToLower(strings.TrimSpace(c.Publish.EpisodeType))
	if c.Publish.EpisodeType == "" {
		c.Publish.EpisodeType = defaultEpisodeType
	}
	if c.Publish.MaxTitleRunes <= 0 {
		c.Publish.MaxTitleRunes = defaultMaxTitleRunes
	}
	if c.Publish.FallbackEpisodeNumber <= 0 {
		c.Publish.FallbackEpisodeNumber = defaultFallbackEpisodeNumber
	}
}

func (c *Config) normalizeApproval() {
	c.Approval.Port = envInt("WEB_CONSOLE_PORT", c.Approval.Port)
	if c.Approval.Port <= 0 {
		c.Approval.Port = defaultApprovalPort
	}
	if c.Approval.PortScanLimit < 0 {
		c.Approval.PortScanLimit = 0
	}
	if c.Approval.TimeoutSeconds < 0 {
		c.Approval.TimeoutSeconds = 0
	}
	c.Approval.PublicURL = strings.TrimRight(envFallback(c.Approval.PublicURL, "PUBLIC_URL"), "/")
	c.Approval.BindHost = strings.TrimSpace(c.Approval.BindHost)
	if c.Approval.BindHost == "" {
		c.Approval.BindHost = defaultApprovalBindHost
	}
}

func (c *Config) normalizeMail() error {
	c.Mail.Provider = strings.ToLower(strings.TrimSpace(c.Mail.Provider))
	if c.Mail.Provider == "" {
		c.Mail.Provider = defaultMailProvider
	}
	c.Mail.Recipient = envFallback(c.Mail.Recipient, "RECIPIENT_EMAIL")
	c.Mail.Sender = strings.TrimSpace(c.Mail.Sender)
	if c.Mail.Sender == "" {
		c.Mail.Sender = "me"
	}
	var err error
	if strings.TrimSpace(c.Mail.CredentialsFile) == "" {
		c.Mail.CredentialsFile = defaultCredentialsFile
	}
	if c.Mail.CredentialsFile, err = expandPath(strings.TrimSpace(c.Mail.CredentialsFile)); err != nil {
		return fmt.Errorf("mail.credentials_file: %w", err)
	}
	if strings.TrimSpace(c.Mail.TokenFile) == "" {
		c.Mail.TokenFile = defaultTokenFile
	}
	if c.Mail.TokenFile, err = expandPath(strings.TrimSpace(c.Mail.TokenFile)); err != nil {
		return fmt.Errorf("mail.token_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeDrive() error {
	c.Drive.Provider = strings.ToLower(strings.TrimSpace(c.Drive.Provider))
	if c.Drive.Provider == "" {
		c.Drive.Provider = defaultDriveProvider
	}
	c.Drive.AudioFolderURL = envFallback(c.Drive.AudioFolderURL, "GOOGLE_DRIVE_AUDIO_URL")
	c.Drive.CoverFolderURL = envFallback(c.Drive.CoverFolderURL, "GOOGLE_DRIVE_COVER_URL")
	c.Drive.S3Bucket = strings.TrimSpace(c.Drive.S3Bucket)
	c.Drive.S3AudioPrefix = strings.TrimSpace(c.Drive.S3AudioPrefix)
	c.Drive.S3CoverPrefix = strings.TrimSpace(c.Drive.S3CoverPrefix)
	var err error
	if strings.TrimSpace(c.Drive.LocalAudioDir) != "" {
		if c.Drive.LocalAudioDir, err = expandPath(strings.TrimSpace(c.Drive.LocalAudioDir)); err != nil {
			return fmt.Errorf("drive.local_audio_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Drive.LocalCoverDir) != "" {
		if c.Drive.LocalCoverDir, err = expandPath(strings.TrimSpace(c.Drive.LocalCoverDir)); err != nil {
			return fmt.Errorf("drive.local_cover_dir: %w", err)
		}
	}
	if c.Drive.DownloadTimeout <= 0 {
		c.Drive.DownloadTimeout = defaultDownloadTimeout
	}
	return nil
}

func (c *Config) normalizeAirtable() {
	c.Airtable.APIKey = envFallback(c.Airtable.APIKey, "AIRTABLE_API_KEY")
	c.Airtable.BaseID = envFallback(c.Airtable.BaseID, "AIRTABLE_BASE_ID")
	c.Airtable.Table = strings.TrimSpace(c.Airtable.Table)
	if c.Airtable.Table == "" {
		c.Airtable.Table = defaultAirtableTable
	}
	c.Airtable.BaseURL = strings.TrimRight(strings.TrimSpace(c.Airtable.BaseURL), "/")
	if c.Airtable.BaseURL == "" {
		c.Airtable.BaseURL = defaultAirtableBaseURL
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	switch c.LLM.Provider {
	case "gemini":
		c.LLM.APIKey = envFallback(c.LLM.APIKey, "GEMINI_API_KEY")
	case "openai":
		c.LLM.APIKey = envFallback(c.LLM.APIKey, "OPENAI_API_KEY")
	default:
		c.LLM.APIKey = envFallback(c.LLM.APIKey, "OPENROUTER_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.FallbackModel = strings.TrimSpace(c.LLM.FallbackModel)
	c.LLM.Referer = envFallback(c.LLM.Referer, "OPENROUTER_SITE_URL")
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = envFallback(c.LLM.Title, "OPENROUTER_SITE_NAME")
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeSchedule() {
	if value, ok := os.LookupEnv("UPLOAD_SCHEDULE"); ok && strings.TrimSpace(value) != "" {
		c.Schedule.Cron = strings.TrimSpace(value)
	}
	c.Schedule.Cron = strings.TrimSpace(c.Schedule.Cron)
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = defaultScheduleCron
	}
	if c.Cleanup.MaxAgeHours <= 0 {
		c.Cleanup.MaxAgeHours = defaultCleanupMaxAgeHours
	}
}

func (c *Config) normalizeTrigger() {
	c.Trigger.Bind = strings.TrimSpace(c.Trigger.Bind)
	if c.Trigger.Bind == "" {
		c.Trigger.Bind = defaultTriggerBind
	}
	if port := envInt("WEBHOOK_PORT", 0); port > 0 {
		host, _, err := net.SplitHostPort(c.Trigger.Bind)
		if err != nil {
			host = ""
		}
		c.Trigger.Bind = net.JoinHostPort(host, strconv.Itoa(port))
	}
	c.Trigger.Token = strings.TrimSpace(c.Trigger.Token)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// envFallback returns the trimmed value, or the named env var when the value is empty.
func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}

// envInt returns the named env var parsed as an integer, or current when the
// variable is unset or malformed.
func envInt(key string, current int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return current
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return current
	}
	return parsed
}
