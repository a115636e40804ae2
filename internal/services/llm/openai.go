package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAICompleter uses the official openai-go SDK against any
// OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAICompleter constructs a completer. A BaseURL that ends in
// /chat/completions is trimmed to the API root the SDK expects.
func NewOpenAICompleter(cfg Config, extra ...option.RequestOption) (*OpenAICompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai: model required")
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := apiRoot(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	opts = append(opts, extra...)
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &OpenAICompleter{
		client:  openai.NewClient(opts...),
		model:   strings.TrimSpace(cfg.Model),
		timeout: timeout,
	}, nil
}

func apiRoot(baseURL string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return ""
	}
	base = strings.TrimSuffix(strings.TrimRight(base, "/"), "/chat/completions")
	return base + "/"
}

// Model reports the configured default model.
func (o *OpenAICompleter) Model() string {
	return o.model
}

// Complete sends one chat completion request.
func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate("openai complete"); err != nil {
		return "", err
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.model
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(strings.TrimSpace(req.System)),
			openai.UserMessage(strings.TrimSpace(req.User)),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	resp, err := o.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errors.New("openai complete: empty choices")
}

// HealthCheck asks the model for a trivial JSON reply.
func (o *OpenAICompleter) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, o, "openai health")
}

func healthCheck(ctx context.Context, c Completer, op string) error {
	content, err := c.Complete(ctx, Request{System: healthSystemPrompt, User: healthUserPrompt, JSON: true})
	if err != nil {
		return err
	}
	return checkHealthReply(op, content)
}
