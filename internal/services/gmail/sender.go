package gmail

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"podpublish/internal/approval"
	"podpublish/internal/logging"
	"podpublish/internal/services"
)

//go:embed template.html
var templateSource string

var bodyTemplate = template.Must(template.New("approval").Parse(templateSource))

var markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps()))

const defaultDescription = "今日 AI 科技新聞精選，為您帶來最新的人工智能發展動態。"

// Options configures Sender.
type Options struct {
	Recipient string
	// Sender is the Gmail user ID; "me" means the authorized account.
	Sender string
}

// Sender sends approval mail through the Gmail API.
type Sender struct {
	svc    *gmail.Service
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewSender builds a Gmail client over an authorized HTTP client.
func NewSender(ctx context.Context, client *http.Client, opts Options, logger *slog.Logger, extra ...option.ClientOption) (*Sender, error) {
	if strings.TrimSpace(opts.Recipient) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gmail", "new sender", "recipient not configured", nil)
	}
	if client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "gmail", "new sender", "no authorized http client", nil)
	}
	if strings.TrimSpace(opts.Sender) == "" {
		opts.Sender = "me"
	}
	svc, err := gmail.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gmail", "new sender", "create gmail service", err)
	}
	return &Sender{svc: svc, opts: opts, logger: logging.NewComponentLogger(logger, "gmail"), now: time.Now}, nil
}

// SendApprovalRequest mails the candidate links.
func (s *Sender) SendApprovalRequest(ctx context.Context, notice approval.Notice) error {
	now := s.now()
	subject := Subject(now, notice.EpisodeNumber)
	body, err := RenderBody(notice, now)
	if err != nil {
		return services.Wrap(services.ErrValidation, "gmail", "render", "approval body", err)
	}
	raw := BuildMessage(s.opts.Recipient, subject, body)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := s.svc.Users.Messages.Send(s.opts.Sender, msg).Context(ctx).Do()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "gmail", "send", "approval mail rejected", err)
	}
	logging.WithContext(ctx, s.logger).Info("approval mail sent",
		logging.String("recipient", s.opts.Recipient),
		logging.String("subject", subject),
		logging.String("message_id", sent.Id),
	)
	return nil
}

// Subject formats the approval mail subject for the given day.
func Subject(now time.Time, episode int) string {
	return fmt.Sprintf("🎙️ %d月%d日 EP%d - AI懶人報標題選擇", int(now.Month()), now.Day(), episode)
}

type linkView struct {
	Number      int
	Title       string
	URL         string
	Recommended bool
}

type bodyView struct {
	Date          string
	EpisodeNumber int
	Deadline      string
	Recommended   string
	Description   template.HTML
	Links         []linkView
}

// RenderBody renders the HTML body. The description is treated as markdown;
// raw HTML inside it is escaped.
func RenderBody(notice approval.Notice, now time.Time) (string, error) {
	description := strings.TrimSpace(notice.Description)
	if description == "" {
		description = defaultDescription
	}
	var rendered bytes.Buffer
	if err := markdown.Convert([]byte(description), &rendered); err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	view := bodyView{
		Date:          fmt.Sprintf("%d月%d日", int(now.Month()), now.Day()),
		EpisodeNumber: notice.EpisodeNumber,
		Deadline:      notice.Deadline.Format("15:04"),
		Description:   template.HTML(rendered.String()),
	}
	for _, link := range notice.Links {
		recommended := link.Index == notice.RecommendedIndex
		if recommended {
			view.Recommended = link.Title
		}
		view.Links = append(view.Links, linkView{Number: link.Index + 1, Title: link.Title, URL: link.URL, Recommended: recommended})
	}
	var out bytes.Buffer
	if err := bodyTemplate.Execute(&out, view); err != nil {
		return "", err
	}
	return out.String(), nil
}

// BuildMessage assembles an RFC 2822 message with a base64 HTML body and an
// encoded-word subject.
func BuildMessage(to, subject, htmlBody string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	encoded := base64.StdEncoding.EncodeToString([]byte(htmlBody))
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	return b.Bytes()
}
