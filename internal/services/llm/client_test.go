package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/option"

	"podpublish/internal/config"
)

func writeChoices(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeChoices(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChoices(t, w, map[string]any{"message": map[string]any{"content": "```json\n{\"ok\":true}\n```"}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestClientCompleteSendsHeadersAndModelOverride(t *testing.T) {
	var got struct {
		Model          string            `json:"model"`
		ResponseFormat map[string]string `json:"response_format"`
		Messages       []chatMessage     `json:"messages"`
	}
	var referer, title, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeChoices(t, w, map[string]any{"message": map[string]any{"content": "done"}})
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "key",
		BaseURL: server.URL,
		Model:   "google/gemini-2.5-flash",
		Referer: "https://podcast.example.com",
		Title:   "podpublish",
	})
	content, err := client.Complete(context.Background(), Request{
		System: "system",
		User:   "user",
		Model:  "anthropic/claude-3.7-sonnet",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != "done" {
		t.Fatalf("content = %q", content)
	}
	if got.Model != "anthropic/claude-3.7-sonnet" {
		t.Fatalf("model = %q, want override", got.Model)
	}
	if got.ResponseFormat != nil {
		t.Fatalf("plain request should not set response_format: %v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if referer != "https://podcast.example.com" || title != "podpublish" || auth != "Bearer key" {
		t.Fatalf("headers referer=%q title=%q auth=%q", referer, title, auth)
	}
}

func TestClientCompleteJSONToolCallsArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChoices(t, w, map[string]any{
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"content": "",
				"tool_calls": []any{
					map[string]any{
						"type": "function",
						"id":   "call_1",
						"function": map[string]any{
							"name":      "titles",
							"arguments": `{"titles":["a","b"],"recommended_index":1}`,
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	var parsed struct {
		Titles           []string `json:"titles"`
		RecommendedIndex int      `json:"recommended_index"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parsed.Titles) != 2 || parsed.RecommendedIndex != 1 {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChoices(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientDeltaAndLegacyText(t *testing.T) {
	tests := []struct {
		name   string
		choice map[string]any
	}{
		{"delta", map[string]any{"delta": map[string]any{"content": `{"ok":true}`}}},
		{"legacy text", map[string]any{"finish_reason": "stop", "text": `{"ok":true}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeChoices(t, w, tt.choice)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
			content, err := client.CompleteJSON(context.Background(), "system", "user")
			if err != nil {
				t.Fatalf("CompleteJSON: %v", err)
			}
			if content != `{"ok":true}` {
				t.Fatalf("content = %q", content)
			}
		})
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeChoices(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"ok":true}`
		}
		writeChoices(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": content}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestClientRejectsEmptyPrompts(t *testing.T) {
	client := NewClient(Config{APIKey: "test", Model: "demo"})
	if _, err := client.Complete(context.Background(), Request{System: "", User: "u"}); err == nil {
		t.Fatal("expected system prompt error")
	}
	if _, err := client.Complete(context.Background(), Request{System: "s", User: " "}); err == nil {
		t.Fatal("expected user prompt error")
	}
}

func TestOpenAICompleterUsesChatCompletions(t *testing.T) {
	var gotPath, gotModel string
	var gotFormat map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		gotFormat, _ = body["response_format"].(map[string]any)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(
		Config{APIKey: "key", BaseURL: server.URL + "/v1/chat/completions", Model: "gpt-test"},
		option.WithMaxRetries(0),
	)
	if err != nil {
		t.Fatalf("NewOpenAICompleter: %v", err)
	}
	if err := completer.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotModel != "gpt-test" {
		t.Fatalf("model = %q", gotModel)
	}
	if gotFormat["type"] != "json_object" {
		t.Fatalf("response_format = %v", gotFormat)
	}
}

func TestAPIRoot(t *testing.T) {
	tests := map[string]string{
		"":                                             "",
		"https://openrouter.ai/api/v1/chat/completions": "https://openrouter.ai/api/v1/",
		"https://api.openai.com/v1/":                   "https://api.openai.com/v1/",
		"http://localhost:8080/v1":                     "http://localhost:8080/v1/",
	}
	for in, want := range tests {
		if got := apiRoot(in); got != want {
			t.Errorf("apiRoot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, config.LLMConfig{Provider: "none", APIKey: "k"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none provider err = %v", err)
	}
	if _, err := New(ctx, config.LLMConfig{Provider: "openrouter"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("missing key err = %v", err)
	}
	c, err := New(ctx, config.LLMConfig{Provider: "openrouter", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("openrouter: %v", err)
	}
	if _, ok := c.(*Client); !ok || c.Model() != "m" {
		t.Fatalf("openrouter completer = %T", c)
	}
	c, err = New(ctx, config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := c.(*OpenAICompleter); !ok {
		t.Fatalf("openai completer = %T", c)
	}
	if _, err := New(ctx, config.LLMConfig{Provider: "bard", APIKey: "k"}); err == nil {
		t.Fatal("unknown provider accepted")
	}
}
