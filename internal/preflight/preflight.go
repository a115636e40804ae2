package preflight

import (
	"context"
	"strings"

	"podpublish/internal/config"
	"podpublish/internal/deps"
	"podpublish/internal/media"
	"podpublish/internal/services/airtable"
	"podpublish/internal/services/googleauth"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Optional failures degrade a run without stopping it.
	Optional bool
	Detail   string
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// RunAll executes the checks that apply to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Diagnostics directory", cfg.Paths.DiagnosticsDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckCredentials(cfg),
		CheckSelectors(cfg.Host.SelectorsFile),
	}
	results = append(results, fromStatuses(CheckSystemDeps(cfg))...)

	switch cfg.Drive.Provider {
	case media.ProviderLocal:
		results = append(results,
			CheckDirectoryAccess("Local audio directory", cfg.Drive.LocalAudioDir),
			CheckDirectoryAccess("Local cover directory", cfg.Drive.LocalCoverDir),
		)
	case media.ProviderS3:
		results = append(results, CheckS3Bucket(ctx, cfg.Drive.S3Bucket))
	}

	if cfg.Drive.Provider == media.ProviderGoogle || cfg.Mail.Provider == "gmail" {
		results = append(results, CheckGoogleToken(cfg.Mail.CredentialsFile, cfg.Mail.TokenFile))
	}

	results = append(results, CheckLLM(ctx, "LLM", cfg.GetLLM()))

	if strings.TrimSpace(cfg.Airtable.APIKey) != "" {
		client := airtable.NewClient(airtable.ConfigFrom(cfg), nil, nil)
		results = append(results, CheckAirtable(ctx, client))
	} else {
		results = append(results, Result{Name: "Airtable", Detail: "api key missing"})
	}
	return results
}

// CheckSystemDeps evaluates the binaries a run shells out to.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	statuses := []deps.Status{deps.ResolveChrome(cfg.Browser.ExecPath)}
	return append(statuses, deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFprobe",
			Command:     "ffprobe",
			Description: "Validates downloaded audio before upload",
			Optional:    true,
		},
	})...)
}

// CheckGoogleToken validates the OAuth client and stored token used by the
// Drive provider and Gmail sender.
func CheckGoogleToken(credentialsFile, tokenFile string) Result {
	const name = "Google OAuth"
	if _, err := googleauth.LoadConfig(googleauth.Options{CredentialsFile: credentialsFile, TokenFile: tokenFile}); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	tok, err := googleauth.LoadToken(tokenFile)
	if err != nil {
		return Result{Name: name, Detail: err.Error() + "; run `podpublish auth url`"}
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return Result{Name: name, Detail: "token expired and has no refresh token; re-authorize"}
	}
	return Result{Name: name, Passed: true, Detail: tokenFile}
}

func fromStatuses(statuses []deps.Status) []Result {
	out := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		detail := s.Command
		if !s.Available {
			detail = s.Detail
		}
		out = append(out, Result{Name: s.Name, Passed: s.Available, Optional: s.Optional, Detail: detail})
	}
	return out
}
