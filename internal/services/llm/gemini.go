package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiCompleter calls the Gemini API through the genai SDK.
type GeminiCompleter struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiCompleter constructs a completer. cfg.BaseURL, when set,
// overrides the API endpoint.
func NewGeminiCompleter(ctx context.Context, cfg Config) (*GeminiCompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("gemini: model required")
	}
	// OpenRouter-style ids such as google/gemini-2.5-flash map to the bare name.
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &GeminiCompleter{client: client, model: model, timeout: timeout}, nil
}

// Model reports the configured default model.
func (g *GeminiCompleter) Model() string {
	return g.model
}

// Complete sends one generateContent request.
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate("gemini complete"); err != nil {
		return "", err
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = g.model
	}
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}
	temperature := float32(req.Temperature)
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: strings.TrimSpace(req.System)}},
		},
		Temperature: &temperature,
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.Models.GenerateContent(callCtx, model, genai.Text(strings.TrimSpace(req.User)), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini complete: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini complete: empty response")
	}
	return text, nil
}

// HealthCheck asks the model for a trivial JSON reply.
func (g *GeminiCompleter) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, g, "gemini health")
}
