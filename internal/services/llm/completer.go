package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"podpublish/internal/config"
)

// Provider names accepted in llm.provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderNone       = "none"
)

// Request is one system+user prompt pair.
type Request struct {
	System string
	User   string
	// Model overrides the client's configured model when set.
	Model       string
	JSON        bool
	Temperature float64
}

func (r Request) validate(op string) error {
	if strings.TrimSpace(r.System) == "" {
		return fmt.Errorf("%s: system prompt required", op)
	}
	if strings.TrimSpace(r.User) == "" {
		return fmt.Errorf("%s: user prompt required", op)
	}
	return nil
}

// Completer is implemented by every provider backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	HealthCheck(ctx context.Context) error
	Model() string
}

// ErrDisabled is returned by New when the provider is "none" or no API key
// is configured.
var ErrDisabled = errors.New("llm disabled")

// New builds the Completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == ProviderNone || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	switch provider {
	case "", ProviderOpenRouter:
		return NewClient(Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Referer:        cfg.Referer,
			Title:          cfg.Title,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}), nil
	case ProviderOpenAI:
		completer, err := NewOpenAICompleter(Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		return completer, nil
	case ProviderGemini:
		completer, err := NewGeminiCompleter(ctx, Config{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		return completer, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
