package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"podpublish/internal/approval"
	"podpublish/internal/services"
)

func testNotice() approval.Notice {
	return approval.Notice{
		Candidates:       []string{"EP42 - 第一", "EP42 - <第二>"},
		Description:      "開場白\n💡 **Claude** 新功能\n👉 立刻試試<script>x</script>",
		CallbackBaseURL:  "http://localhost:3000",
		Links:            []approval.Link{{Index: 0, Title: "EP42 - 第一", URL: "http://localhost:3000/select?index=0"}, {Index: 1, Title: "EP42 - <第二>", URL: "http://localhost:3000/select?index=1"}},
		Deadline:         time.Date(2026, 3, 9, 9, 2, 0, 0, time.UTC),
		EpisodeNumber:    42,
		RecommendedIndex: 1,
	}
}

func TestSubject(t *testing.T) {
	got := Subject(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), 42)
	if got != "🎙️ 3月9日 EP42 - AI懶人報標題選擇" {
		t.Fatalf("Subject = %q", got)
	}
}

func TestRenderBody(t *testing.T) {
	body, err := RenderBody(testNotice(), time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RenderBody: %v", err)
	}
	for _, want := range []string{
		"3月9日 EP42",
		`href="http://localhost:3000/select?index=0"`,
		`href="http://localhost:3000/select?index=1"`,
		"2. EP42 - &lt;第二&gt; ⭐",
		"<strong>Claude</strong>",
		"09:02",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("raw script tag rendered")
	}
}

func TestRenderBodyDefaultDescription(t *testing.T) {
	notice := testNotice()
	notice.Description = "  "
	body, err := RenderBody(notice, time.Now())
	if err != nil {
		t.Fatalf("RenderBody: %v", err)
	}
	if !strings.Contains(body, defaultDescription) {
		t.Fatal("default description missing")
	}
}

func TestBuildMessageParses(t *testing.T) {
	raw := BuildMessage("host@example.com", "🎙️ 主旨", "<p>"+strings.Repeat("內容", 100)+"</p>")
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if err != nil || subject != "🎙️ 主旨" {
		t.Fatalf("subject = %q err=%v", subject, err)
	}
	encoded, _ := io.ReadAll(msg.Body)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.HasPrefix(string(decoded), "<p>內容") {
		t.Fatalf("body = %q", decoded)
	}
}

func TestSenderSendsThroughAPI(t *testing.T) {
	var gotPath string
	var payload struct {
		Raw string `json:"raw"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	sender, err := NewSender(context.Background(), srv.Client(), Options{Recipient: "host@example.com"}, nil, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	sender.now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }
	if err := sender.SendApprovalRequest(context.Background(), testNotice()); err != nil {
		t.Fatalf("SendApprovalRequest: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/users/me/messages/send") {
		t.Fatalf("path = %s", gotPath)
	}
	raw, err := base64.URLEncoding.DecodeString(payload.Raw)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.Header.Get("To") != "host@example.com" {
		t.Fatalf("To = %q", msg.Header.Get("To"))
	}
}

func TestSenderReportsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"insufficient scope"}}`))
	}))
	defer srv.Close()

	sender, err := NewSender(context.Background(), srv.Client(), Options{Recipient: "host@example.com"}, nil, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	err = sender.SendApprovalRequest(context.Background(), testNotice())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewSenderRequiresRecipient(t *testing.T) {
	if _, err := NewSender(context.Background(), http.DefaultClient, Options{}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}
