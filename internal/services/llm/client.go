package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 15 * time.Second
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

func (c Config) trimmed() Config {
	return Config{
		APIKey:         strings.TrimSpace(c.APIKey),
		BaseURL:        strings.TrimSpace(c.BaseURL),
		Model:          strings.TrimSpace(c.Model),
		Referer:        strings.TrimSpace(c.Referer),
		Title:          strings.TrimSpace(c.Title),
		TimeoutSeconds: c.TimeoutSeconds,
	}
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultHTTPTimeout
}

// Client talks to an OpenRouter-style chat completion endpoint over plain
// HTTP, with OpenRouter attribution headers and retry on throttling.
type Client struct {
	cfg   Config
	http  *http.Client
	retry backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		c.retry.ceiling = ceiling
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleeper = sleeper }
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.trimmed()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.timeout()},
		retry: defaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model reports the configured default model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends one chat completion. An empty req.Model uses the
// configured model.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate("llm complete"); err != nil {
		return "", err
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("llm complete: api key required")
	}
	body := chatRequest{
		Model:       firstNonEmpty(req.Model, c.cfg.Model),
		Temperature: req.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.System)},
			{Role: "user", Content: strings.TrimSpace(req.User)},
		},
	}
	if req.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	return c.complete(ctx, "llm complete", body)
}

// CompleteJSON issues a JSON-only chat completion request with the supplied prompts.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Complete(ctx, Request{System: systemPrompt, User: userPrompt, JSON: true})
}

// HealthCheck asks the model for a fixed JSON reply.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm health: api key required")
	}
	content, err := c.complete(ctx, "llm health", chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: healthSystemPrompt},
			{Role: "user", Content: healthUserPrompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return err
	}
	return checkHealthReply("llm health", content)
}

const (
	healthSystemPrompt = "You must respond with JSON only."
	healthUserPrompt   = `Respond with {"ok":true}`
)

func checkHealthReply(op, content string) error {
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &reply); err != nil {
		return fmt.Errorf("%s: parse payload: %w", op, err)
	}
	if !reply.OK {
		return fmt.Errorf("%s: unexpected response", op)
	}
	return nil
}

// complete posts body until it yields non-empty content or the retry budget
// runs out.
func (c *Client) complete(ctx context.Context, op string, body chatRequest) (string, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}
	var content string
	err = c.retry.run(ctx, op, func() error {
		resp, raw, err := c.post(ctx, encoded)
		if err != nil {
			return err
		}
		var finish string
		content, finish = resp.content()
		if content != "" {
			return nil
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%s: empty choices", op)
		}
		return &emptyContentError{
			Op:           op,
			FinishReason: finish,
			Refusal:      resp.refusal(),
			Snippet:      snippet(string(raw)),
		}
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, encoded []byte) (chatResponse, []byte, error) {
	var out chatResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return out, nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if ref := c.cfg.Referer; ref != "" {
		req.Header.Set("HTTP-Referer", ref)
		req.Header.Set("Referer", ref)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, nil, fmt.Errorf("llm request (timeout=%s): %w", c.http.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, nil, fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, raw, newStatusError(resp, raw)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, raw, fmt.Errorf("llm request: decode response: %w", err)
	}
	if out.Error != nil {
		return out, raw, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(out.Error.Message))
	}
	return out, raw, nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse accepts the non-streaming schema plus the delta and legacy
// text shapes some OpenRouter upstreams still return.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatChoice struct {
	Message      replyMessage `json:"message"`
	Delta        replyMessage `json:"delta"`
	Text         string       `json:"text"`
	FinishReason string       `json:"finish_reason"`
}

type replyMessage struct {
	Content      string        `json:"content"`
	Refusal      string        `json:"refusal"`
	FunctionCall *functionCall `json:"function_call"`
	ToolCalls    []struct {
		Function functionCall `json:"function"`
	} `json:"tool_calls"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// arguments returns the first function or tool call argument payload.
func (m replyMessage) arguments() string {
	if m.FunctionCall != nil {
		if args := strings.TrimSpace(m.FunctionCall.Arguments); args != "" {
			return args
		}
	}
	for _, call := range m.ToolCalls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

// content returns the first usable text across choices plus the first
// finish reason seen.
func (r chatResponse) content() (string, string) {
	finish := ""
	for _, ch := range r.Choices {
		if finish == "" {
			finish = strings.TrimSpace(ch.FinishReason)
		}
		text := firstNonEmpty(
			ch.Message.Content, ch.Delta.Content, ch.Text,
			ch.Message.arguments(), ch.Delta.arguments(),
		)
		if text != "" {
			return text, finish
		}
	}
	return "", finish
}

func (r chatResponse) refusal() string {
	for _, ch := range r.Choices {
		if s := firstNonEmpty(ch.Message.Refusal, ch.Delta.Refusal); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
