package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podpublish/internal/config"
)

const userAgent = "podpublish/0.1.0"

// Event names a notification type.
type Event string

const (
	EventPublished         Event = "published"
	EventPublishedWarning  Event = "published_with_warning"
	EventDraftSaved        Event = "draft_saved"
	EventRunFailed         Event = "run_failed"
	EventApprovalRequested Event = "approval_requested"
	EventRunStarted        Event = "run_started"
	EventStepCompleted     Event = "step_completed"
	EventTest              Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

// format renders an event, reporting false for suppressed events.
func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPublished:
		return message{
			title: "podpublish - Published",
			body:  fmt.Sprintf("✅ 已發布: %s", payload.text("title")),
			tags:  []string{"podpublish", "publish", "success"},
		}, true
	case EventPublishedWarning:
		return message{
			title:    "podpublish - Published with warnings",
			body:     fmt.Sprintf("⚠️ 已發布: %s\n%s", payload.text("title"), payload.text("warning")),
			tags:     []string{"podpublish", "publish", "warning"},
			priority: "high",
		}, true
	case EventDraftSaved:
		return message{
			title: "podpublish - Draft saved",
			body:  fmt.Sprintf("📝 已存草稿: %s", payload.text("title")),
			tags:  []string{"podpublish", "draft"},
		}, true
	case EventRunFailed:
		var b strings.Builder
		b.WriteString("❌ 上傳失敗")
		if step := payload.text("step"); step != "" {
			b.WriteString(" at ")
			b.WriteString(step)
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		if path := payload.text("diagnostic"); path != "" {
			b.WriteString("\nScreenshot: ")
			b.WriteString(path)
		}
		return message{
			title:    "podpublish - Error",
			body:     b.String(),
			tags:     []string{"podpublish", "error", "alert"},
			priority: "high",
		}, true
	case EventApprovalRequested:
		return message{
			title: "podpublish - Title approval",
			body:  fmt.Sprintf("🎙️ EP%s 標題待選擇: %s", payload.text("episode"), payload.text("url")),
			tags:  []string{"podpublish", "approval"},
		}, true
	case EventTest:
		return message{
			title:    "podpublish - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"podpublish", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
