package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeLLMJSON unmarshals a model reply into target. Replies wrapped in a
// ```json fence or surrounded by prose are reduced to the outermost JSON
// object or array before a second attempt.
func DecodeLLMJSON(content string, target any) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return errors.New("empty payload")
	}
	firstErr := json.Unmarshal([]byte(text), target)
	if firstErr == nil {
		return nil
	}
	inner := extractJSON(text)
	if inner == "" || inner == text {
		return fmt.Errorf("%w (payload snippet: %s)", firstErr, snippet(text))
	}
	if err := json.Unmarshal([]byte(inner), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(inner))
	}
	return nil
}

func extractJSON(text string) string {
	text = unfence(text)
	if text == "" || text[0] == '{' || text[0] == '[' {
		return text
	}
	for _, pair := range [...][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return text
}

func unfence(text string) string {
	text = strings.TrimSpace(text)
	body, ok := strings.CutPrefix(text, "```")
	if !ok {
		return text
	}
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// snippet collapses whitespace and caps the text for error messages.
func snippet(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(strings.Join(fields, " "))
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return string(runes)
}
