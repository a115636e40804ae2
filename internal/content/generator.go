package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podpublish/internal/logging"
	"podpublish/internal/services"
	"podpublish/internal/services/llm"
	"podpublish/internal/textutil"
)

const (
	candidateCount      = 10
	duplicateThreshold  = 0.9
	defaultTemperature  = 0.7
	defaultMaxTitleRune = 50
	maxSummaryRunes     = 6000
)

// Content is the generated copy for one episode.
type Content struct {
	TitleCandidates  []string
	RecommendedIndex int
	Description      string
	// Model is the model that produced the copy, empty for fallback copy.
	Model    string
	Fallback bool
}

// Recommended returns the recommended title or the first one when the index
// is out of range.
func (c Content) Recommended() string {
	if len(c.TitleCandidates) == 0 {
		return ""
	}
	if c.RecommendedIndex < 0 || c.RecommendedIndex >= len(c.TitleCandidates) {
		return c.TitleCandidates[0]
	}
	return c.TitleCandidates[c.RecommendedIndex]
}

// Generator produces episode copy from the raw tracking-record summary.
type Generator interface {
	Generate(ctx context.Context, rawSummary string) (Content, error)
}

// Options tunes LLMGenerator.
type Options struct {
	FallbackModel string
	MaxTitleRunes int
	Temperature   float64
}

// LLMGenerator asks a completer for titles and a description in one JSON
// response.
type LLMGenerator struct {
	completer llm.Completer
	opts      Options
	logger    *slog.Logger
}

// NewLLMGenerator wraps completer.
func NewLLMGenerator(completer llm.Completer, opts Options, logger *slog.Logger) *LLMGenerator {
	if opts.MaxTitleRunes <= 0 {
		opts.MaxTitleRunes = defaultMaxTitleRune
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	return &LLMGenerator{
		completer: completer,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "content"),
	}
}

type generatedPayload struct {
	Titles           []string `json:"titles"`
	RecommendedIndex int      `json:"recommended_index"`
	Description      string   `json:"description"`
}

// Generate requests copy with the configured model and retries once with the
// fallback model when the first attempt fails or returns unusable JSON.
func (g *LLMGenerator) Generate(ctx context.Context, rawSummary string) (Content, error) {
	if g == nil || g.completer == nil {
		return Content{}, services.Wrap(services.ErrConfiguration, "content", "generate", "no completer configured", nil)
	}
	summary := truncateRunes(PlainText(rawSummary), maxSummaryRunes)
	if summary == "" {
		return Content{}, services.Wrap(services.ErrValidation, "content", "generate", "summary is empty", nil)
	}
	logger := logging.WithContext(ctx, g.logger)

	models := []string{""}
	if fb := strings.TrimSpace(g.opts.FallbackModel); fb != "" && fb != g.completer.Model() {
		models = append(models, fb)
	}

	var lastErr error
	for i, model := range models {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		name := model
		if name == "" {
			name = g.completer.Model()
		}
		out, err := g.generateWith(ctx, summary, model)
		if err == nil {
			out.Model = name
			logger.Info("episode copy generated",
				logging.String("model", name),
				logging.Int("candidate_count", len(out.TitleCandidates)),
				logging.Int("recommended_index", out.RecommendedIndex),
			)
			return out, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Content{}, err
		}
		if i < len(models)-1 {
			logging.WarnWithContext(logger, "copy generation failed, trying fallback model", "content_model_fallback",
				logging.String("model", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check llm.model availability"),
				logging.String(logging.FieldImpact, "fallback model used"),
			)
		}
	}
	return Content{}, services.Wrap(services.ErrExternalTool, "content", "generate", "all models failed", lastErr)
}

func (g *LLMGenerator) generateWith(ctx context.Context, summary, model string) (Content, error) {
	raw, err := g.completer.Complete(ctx, llm.Request{
		System:      systemPrompt(g.opts.MaxTitleRunes),
		User:        userPrompt(summary),
		Model:       model,
		JSON:        true,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return Content{}, err
	}
	var payload generatedPayload
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return Content{}, err
	}
	return g.clean(payload)
}

// clean normalizes and dedupes titles and keeps the recommended index
// pointing at the same title.
func (g *LLMGenerator) clean(payload generatedPayload) (Content, error) {
	var recommended string
	if payload.RecommendedIndex >= 0 && payload.RecommendedIndex < len(payload.Titles) {
		recommended = textutil.NormalizeTitle(payload.Titles[payload.RecommendedIndex], g.opts.MaxTitleRunes)
	}
	normalized := make([]string, 0, len(payload.Titles))
	for _, title := range payload.Titles {
		if t := textutil.NormalizeTitle(title, g.opts.MaxTitleRunes); t != "" {
			normalized = append(normalized, t)
		}
	}
	titles := textutil.DedupeSimilar(normalized, duplicateThreshold)
	if len(titles) == 0 {
		return Content{}, errors.New("response contained no usable titles")
	}
	description := strings.TrimSpace(payload.Description)
	if description == "" {
		return Content{}, errors.New("response contained no description")
	}
	index := 0
	for i, title := range titles {
		if title == recommended {
			index = i
			break
		}
	}
	return Content{TitleCandidates: titles, RecommendedIndex: index, Description: description}, nil
}

// Fallback returns deterministic copy for the given day.
func Fallback(now time.Time) Content {
	date := fmt.Sprintf("%d月%d日", int(now.Month()), now.Day())
	return Content{
		TitleCandidates: []string{
			date + " AI懶人報：本週 AI 工具重點整理",
			date + " AI懶人報：一次看懂最新 AI 動態",
			date + " AI懶人報：今天值得試試的 AI 工具",
		},
		RecommendedIndex: 0,
		Description:      date + " AI懶人報重點整理。想知道更多細節，歡迎在留言分享你最想試的工具！",
		Fallback:         true,
	}
}

// GenerateOrFallback runs gen and switches to Fallback on any error other
// than cancellation. A nil generator yields fallback copy.
func GenerateOrFallback(ctx context.Context, gen Generator, rawSummary string, now time.Time, logger *slog.Logger) (Content, error) {
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "content"))
	if gen == nil {
		logger.Info("content generator disabled", logging.Args(logging.DecisionAttrs("content_source", "fallback", "no generator configured")...)...)
		return Fallback(now), nil
	}
	out, err := gen.Generate(ctx, rawSummary)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Content{}, ctxErr
	}
	logging.WarnWithContext(logger, "content generation failed", "content_generation_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check llm settings with podpublish doctor"),
		logging.String(logging.FieldImpact, "fallback titles and description used"),
	)
	return Fallback(now), nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
