package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"podpublish/internal/config"
	"podpublish/internal/logging"
	"podpublish/internal/publish"
	"podpublish/internal/services"
)

const defaultTimeout = 30 * time.Second

// Field names in the tracking table.
const (
	FieldDate          = "Date"
	FieldEmailHTML     = "Email html"
	FieldRawSummary    = "Raw Podcast Summary"
	FieldTitle         = "Youtube Title1"
	FieldEpisodeNumber = "Episode Number"
	FieldStatus        = "Status"
	FieldUploadDate    = "Upload Date"
	FieldUploadStatus  = "Upload Status"
	FieldErrorMessage  = "Error Message"
	FieldLastUpdated   = "Last Updated"
)

// Status values written to FieldStatus.
const (
	StatusUploaded = "Uploaded"
	StatusDraft    = "Draft Saved"
	StatusFailed   = "Failed"
)

// Episode is the subset of a tracking record the pipeline consumes.
type Episode struct {
	ID            string
	Date          string
	EmailHTML     string
	RawSummary    string
	Title         string
	EpisodeNumber int
}

// Summary returns the text handed to content generation, preferring the
// email HTML.
func (e *Episode) Summary() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.EmailHTML) != "" {
		return e.EmailHTML
	}
	return e.RawSummary
}

// Config holds connection settings.
type Config struct {
	APIKey  string
	BaseID  string
	Table   string
	BaseURL string
}

// ConfigFrom maps the airtable config section.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{APIKey: cfg.Airtable.APIKey, BaseID: cfg.Airtable.BaseID, Table: cfg.Airtable.Table, BaseURL: cfg.Airtable.BaseURL}
}

// Client talks to one Airtable table.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient constructs a client. A nil httpClient uses a 30s timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.airtable.com/v0"
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logging.NewComponentLogger(logger, "airtable"),
		now:        time.Now,
	}
}

type record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type listResponse struct {
	Records []record `json:"records"`
}

type apiError struct {
	Error json.RawMessage `json:"error"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("airtable status %d: %s", e.StatusCode, e.Body)
}

// LatestEpisode returns the newest record whose email HTML is set.
func (c *Client) LatestEpisode(ctx context.Context) (*Episode, error) {
	query := url.Values{}
	query.Set("filterByFormula", fmt.Sprintf("NOT({%s} = '')", FieldEmailHTML))
	query.Set("maxRecords", "1")
	query.Set("sort[0][field]", FieldDate)
	query.Set("sort[0][direction]", "desc")

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, c.tableURL("")+"?"+query.Encode(), nil, &resp); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "airtable", "latest episode", "list records", err)
	}
	if len(resp.Records) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "airtable", "latest episode", "no record with email html", nil)
	}
	rec := resp.Records[0]
	ep := &Episode{
		ID:            rec.ID,
		Date:          stringField(rec.Fields, FieldDate),
		EmailHTML:     stringField(rec.Fields, FieldEmailHTML),
		RawSummary:    stringField(rec.Fields, FieldRawSummary),
		Title:         stringField(rec.Fields, FieldTitle),
		EpisodeNumber: intField(rec.Fields, FieldEpisodeNumber),
	}
	if strings.TrimSpace(ep.Summary()) == "" {
		return nil, services.Wrap(services.ErrValidation, "airtable", "latest episode", "record "+ep.ID+" has no summary", nil)
	}
	logging.WithContext(ctx, c.logger).Info("episode record loaded",
		logging.String("record_id", ep.ID),
		logging.String("date", ep.Date),
		logging.Int("summary_chars", len([]rune(ep.Summary()))),
	)
	return ep, nil
}

// MarkPublished records a successful run. Draft runs get StatusDraft and do
// not set the upload fields.
func (c *Client) MarkPublished(ctx context.Context, recordID string, meta publish.Metadata) error {
	at := meta.CompletedAt
	if at.IsZero() {
		at = c.now()
	}
	fields := map[string]any{FieldLastUpdated: at.UTC().Format(time.RFC3339)}
	if meta.Draft {
		fields[FieldStatus] = StatusDraft
	} else {
		fields[FieldStatus] = StatusUploaded
		fields[FieldUploadDate] = at.UTC().Format(time.RFC3339)
		fields[FieldUploadStatus] = "Success"
	}
	if meta.Warning != "" {
		fields[FieldErrorMessage] = meta.Warning
	}
	return c.update(ctx, "mark published", recordID, fields)
}

// MarkFailed records a fatal run.
func (c *Client) MarkFailed(ctx context.Context, recordID string, cause error) error {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return c.update(ctx, "mark failed", recordID, map[string]any{
		FieldStatus:       StatusFailed,
		FieldErrorMessage: reason,
		FieldLastUpdated:  c.now().UTC().Format(time.RFC3339),
	})
}

// Ping checks that the table is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, c.tableURL("")+"?maxRecords=1", nil, &resp); err != nil {
		return services.Wrap(services.ErrExternalTool, "airtable", "ping", "list records", err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, op, recordID string, fields map[string]any) error {
	if strings.TrimSpace(recordID) == "" {
		return services.Wrap(services.ErrValidation, "airtable", op, "record id required", nil)
	}
	body := map[string]any{"fields": fields, "typecast": true}
	if err := c.do(ctx, http.MethodPatch, c.tableURL(recordID), body, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "airtable", op, "update record", err)
	}
	logging.WithContext(ctx, c.logger).Info("record updated",
		logging.String("record_id", recordID),
		logging.String("status", fmt.Sprint(fields[FieldStatus])),
	)
	return nil
}

func (c *Client) tableURL(recordID string) string {
	u := c.cfg.BaseURL + "/" + url.PathEscape(c.cfg.BaseID) + "/" + url.PathEscape(c.cfg.Table)
	if recordID != "" {
		u += "/" + url.PathEscape(recordID)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	if c.cfg.APIKey == "" || c.cfg.BaseID == "" {
		return fmt.Errorf("airtable api key and base id are required")
	}
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(body))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Error) > 0 {
			msg = string(apiErr.Error)
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}
