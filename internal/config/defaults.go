package config

const (
	defaultConfigPath            = "~/.config/podpublish/config.toml"
	defaultTempDir               = "~/.local/share/podpublish/temp"
	defaultLogDir                = "~/.local/share/podpublish/logs"
	defaultProfileDir            = "~/.local/share/podpublish/browser-profile"
	defaultDiagnosticsDir        = "~/.local/share/podpublish/diagnostics"
	defaultStateDir              = "~/.local/share/podpublish/state"
	defaultEpisodesURL           = "https://host.soundon.fm/app/podcasts/ca974d36-6fcc-46fc-a339-ba7ed8902c80/episodes"
	defaultLoginTimeoutMS        = 60000
	defaultNavigationTimeoutMS   = 60000
	defaultElementTimeoutMS      = 30000
	defaultSettleMS              = 500
	defaultBrowserWidth          = 1280
	defaultBrowserHeight         = 720
	defaultRetryAttempts         = 3
	defaultRetryBackoffMS        = 2000
	defaultAdOption              = "inactive"
	defaultEpisodeType           = "public"
	defaultTitlePrefixFormat     = "EP%d - "
	defaultMaxTitleRunes         = 100
	defaultFallbackEpisodeNumber = 1
	defaultApprovalPort          = 3000
	defaultApprovalScanLimit     = 10
	defaultApprovalTimeout       = 120
	defaultApprovalBindHost      = "0.0.0.0"
	defaultMailProvider          = "gmail"
	defaultCredentialsFile       = "~/.config/podpublish/google-credentials.json"
	defaultTokenFile             = "~/.config/podpublish/google-token.json"
	defaultDriveProvider         = "google"
	defaultDownloadTimeout       = 300
	defaultAirtableTable         = "Daily Podcast Summary"
	defaultAirtableBaseURL       = "https://api.airtable.com/v0"
	defaultLLMProvider           = "openrouter"
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-2.5-flash"
	defaultLLMFallbackModel      = "anthropic/claude-3.7-sonnet"
	defaultLLMReferer            = "https://github.com/podpublish/podpublish"
	defaultLLMTitle              = "podpublish"
	defaultLLMTimeoutSeconds     = 60
	defaultScheduleCron          = "0 9 * * *"
	defaultCleanupMaxAgeHours    = 24
	defaultTriggerBind           = "127.0.0.1:8080"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TempDir:        defaultTempDir,
			LogDir:         defaultLogDir,
			ProfileDir:     defaultProfileDir,
			DiagnosticsDir: defaultDiagnosticsDir,
			StateDir:       defaultStateDir,
		},
		Host: Host{
			EpisodesURL:       defaultEpisodesURL,
			LoginTimeout:      defaultLoginTimeoutMS,
			NavigationTimeout: defaultNavigationTimeoutMS,
			ElementTimeout:    defaultElementTimeoutMS,
			SettleMS:          defaultSettleMS,
		},
		Browser: Browser{
			Headless: true,
			Width:    defaultBrowserWidth,
			Height:   defaultBrowserHeight,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryAttempts,
			BackoffMS:   defaultRetryBackoffMS,
		},
		Publish: Publish{
			AdOption:              defaultAdOption,
			EpisodeType:           defaultEpisodeType,
			TitlePrefixFormat:     defaultTitlePrefixFormat,
			MaxTitleRunes:         defaultMaxTitleRunes,
			FallbackEpisodeNumber: defaultFallbackEpisodeNumber,
		},
		Approval: Approval{
			Port:           defaultApprovalPort,
			PortScanLimit:  defaultApprovalScanLimit,
			TimeoutSeconds: defaultApprovalTimeout,
			BindHost:       defaultApprovalBindHost,
		},
		Mail: Mail{
			Provider:        defaultMailProvider,
			CredentialsFile: defaultCredentialsFile,
			TokenFile:       defaultTokenFile,
		},
		Drive: Drive{
			Provider:        defaultDriveProvider,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Airtable: Airtable{
			Table:   defaultAirtableTable,
			BaseURL: defaultAirtableBaseURL,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			FallbackModel:  defaultLLMFallbackModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Schedule: Schedule{
			Cron: defaultScheduleCron,
		},
		Cleanup: Cleanup{
			MaxAgeHours: defaultCleanupMaxAgeHours,
		},
		Trigger: Trigger{
			Bind: defaultTriggerBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
