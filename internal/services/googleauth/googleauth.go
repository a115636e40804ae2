package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"

	"podpublish/internal/services"
)

// DefaultScopes covers reading Drive folders and sending approval mail.
var DefaultScopes = []string{drive.DriveReadonlyScope, gmail.GmailSendScope}

// oobRedirect is the copy-paste redirect used when the credentials file
// does not name one.
const oobRedirect = "urn:ietf:wg:oauth:2.0:oob"

// ErrNoToken marks a missing token file; run "podpublish auth" first.
var ErrNoToken = errors.New("google token not found")

// Options locate the OAuth client secrets and stored token.
type Options struct {
	CredentialsFile string
	TokenFile       string
	Scopes          []string
}

func (o Options) scopes() []string {
	if len(o.Scopes) == 0 {
		return DefaultScopes
	}
	return o.Scopes
}

// LoadConfig reads the OAuth client from CredentialsFile, or from
// GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET when both are set.
func LoadConfig(opts Options) (*oauth2.Config, error) {
	id := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID"))
	secret := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET"))
	if id != "" && secret != "" {
		redirect := strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URI"))
		if redirect == "" {
			redirect = oobRedirect
		}
		return &oauth2.Config{
			ClientID:     id,
			ClientSecret: secret,
			RedirectURL:  redirect,
			Endpoint:     google.Endpoint,
			Scopes:       opts.scopes(),
		}, nil
	}
	data, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "googleauth", "load credentials", "read "+opts.CredentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(data, opts.scopes()...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "googleauth", "load credentials", "parse client secrets", err)
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = oobRedirect
	}
	return cfg, nil
}

// LoadToken reads a stored token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no credentials", path)
	}
	return &tok, nil
}

// SaveToken writes tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("save token: nil token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, path)
}

// HTTPClient returns an authorized client whose refreshed tokens are saved
// back to opts.TokenFile.
func HTTPClient(ctx context.Context, opts Options) (*http.Client, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(opts.TokenFile)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "googleauth", "load token", "run podpublish auth url", err)
	}
	src := &persistingSource{
		base: cfg.TokenSource(ctx, tok),
		path: opts.TokenFile,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// AuthCodeURL returns the consent URL for an offline token.
func AuthCodeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("podpublish", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, tokenPath string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "googleauth", "exchange", "authorization code rejected", err)
	}
	if err := SaveToken(tokenPath, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// persistingSource saves the token whenever the access token changes.
type persistingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := SaveToken(p.path, tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
