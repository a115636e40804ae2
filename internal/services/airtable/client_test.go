package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"podpublish/internal/publish"
	"podpublish/internal/services"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &req.Body)
		}
		captured = append(captured, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(Config{APIKey: "key", BaseID: "app1", Table: "Daily Podcast Summary", BaseURL: srv.URL + "/v0/"}, srv.Client(), nil)
	c.now = func() time.Time { return time.Date(2026, 3, 9, 1, 2, 3, 0, time.UTC) }
	return c
}

func TestLatestEpisode(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `{"records":[{"id":"rec1","fields":{"Date":"2026-03-09","Email html":"<p>hi</p>","Episode Number":42}}]}`)
	ep, err := newTestClient(srv).LatestEpisode(context.Background())
	if err != nil {
		t.Fatalf("LatestEpisode: %v", err)
	}
	if ep.ID != "rec1" || ep.EpisodeNumber != 42 || ep.Summary() != "<p>hi</p>" {
		t.Fatalf("episode = %+v", ep)
	}
	req := (*captured)[0]
	if req.Method != http.MethodGet || req.Path != "/v0/app1/Daily%20Podcast%20Summary" || req.Auth != "Bearer key" {
		t.Fatalf("request = %+v", req)
	}
	for _, want := range []string{"maxRecords=1", "filterByFormula=NOT%28%7BEmail+html%7D+%3D+%27%27%29", "sort%5B0%5D%5Bdirection%5D=desc"} {
		if !strings.Contains(req.Query, want) {
			t.Errorf("query %q missing %q", req.Query, want)
		}
	}
}

func TestLatestEpisodeEmpty(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"records":[]}`)
	_, err := newTestClient(srv).LatestEpisode(context.Background())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestLatestEpisodeFallsBackToRawSummary(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"records":[{"id":"rec2","fields":{"Email html":"","Raw Podcast Summary":"plain","Episode Number":"7"}}]}`)
	ep, err := newTestClient(srv).LatestEpisode(context.Background())
	if err != nil {
		t.Fatalf("LatestEpisode: %v", err)
	}
	if ep.Summary() != "plain" || ep.EpisodeNumber != 7 {
		t.Fatalf("episode = %+v", ep)
	}
}

func TestAPIErrorIsExternal(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"type":"AUTHENTICATION_REQUIRED"}}`)
	_, err := newTestClient(srv).LatestEpisode(context.Background())
	var statusErr *StatusError
	if !errors.Is(err, services.ErrExternalTool) || !errors.As(err, &statusErr) || statusErr.StatusCode != 401 {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(statusErr.Body, "AUTHENTICATION_REQUIRED") {
		t.Fatalf("body = %q", statusErr.Body)
	}
}

func TestMarkPublished(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `{"id":"rec1","fields":{}}`)
	err := newTestClient(srv).MarkPublished(context.Background(), "rec1", publish.Metadata{Title: "EP42 - x", Warning: "cover upload failed"})
	if err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	req := (*captured)[0]
	if req.Method != http.MethodPatch || !strings.HasSuffix(req.Path, "/rec1") {
		t.Fatalf("request = %+v", req)
	}
	fields := req.Body["fields"].(map[string]any)
	if fields[FieldStatus] != StatusUploaded || fields[FieldUploadStatus] != "Success" || fields[FieldUploadDate] != "2026-03-09T01:02:03Z" {
		t.Fatalf("fields = %v", fields)
	}
	if fields[FieldErrorMessage] != "cover upload failed" {
		t.Fatalf("warning not recorded: %v", fields)
	}
}

func TestMarkPublishedDraft(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `{}`)
	if err := newTestClient(srv).MarkPublished(context.Background(), "rec1", publish.Metadata{Draft: true}); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	fields := (*captured)[0].Body["fields"].(map[string]any)
	if fields[FieldStatus] != StatusDraft {
		t.Fatalf("status = %v", fields[FieldStatus])
	}
	if _, ok := fields[FieldUploadDate]; ok {
		t.Fatal("draft should not set upload date")
	}
}

func TestMarkFailed(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `{}`)
	if err := newTestClient(srv).MarkFailed(context.Background(), "rec1", errors.New("audio upload failed")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	fields := (*captured)[0].Body["fields"].(map[string]any)
	if fields[FieldStatus] != StatusFailed || fields[FieldErrorMessage] != "audio upload failed" {
		t.Fatalf("fields = %v", fields)
	}
	if err := newTestClient(srv).MarkFailed(context.Background(), " ", errors.New("x")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty id err = %v", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	c := NewClient(Config{}, nil, nil)
	if err := c.Ping(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v", err)
	}
}
