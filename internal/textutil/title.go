package textutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	episodePrefixPattern = regexp.MustCompile(`^\s*EP\s*(\d+)`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// quotePairs lists wrappers LLMs like to put around a single title.
var quotePairs = [][2]string{
	{`"`, `"`},
	{"'", "'"},
	{"“", "”"},
	{"「", "」"},
	{"『", "』"},
	{"《", "》"},
}

// FoldWidth maps fullwidth ASCII forms to their narrow equivalents and leaves
// CJK characters untouched.
func FoldWidth(s string) string {
	return width.Fold.String(s)
}

// NormalizeTitle composes s to NFC, strips control characters and one layer
// of wrapping quotes, collapses whitespace, and truncates to maxRunes runes
// (0 means unlimited).
func NormalizeTitle(s string, maxRunes int) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	for _, pair := range quotePairs {
		if len(s) > len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			s = strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
			break
		}
	}
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return s
}

// ParseEpisodeNumber extracts N from a title beginning with "EPN". Fullwidth
// digits and letters are accepted.
func ParseEpisodeNumber(title string) (int, bool) {
	match := episodePrefixPattern.FindStringSubmatch(strings.ToUpper(FoldWidth(title)))
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// WithEpisodePrefix prepends the formatted episode prefix unless the title
// already carries one. An empty format returns the title unchanged.
func WithEpisodePrefix(format string, episode int, title string) string {
	if format == "" || episode <= 0 {
		return title
	}
	if _, ok := ParseEpisodeNumber(title); ok {
		return title
	}
	return fmt.Sprintf(format, episode) + title
}

// EpisodeTitle normalizes a raw candidate before prefixing it, so wrapping
// quotes around the candidate are removed, then caps the prefixed title at
// maxRunes.
func EpisodeTitle(format string, episode int, candidate string, maxRunes int) string {
	prefixed := WithEpisodePrefix(format, episode, NormalizeTitle(candidate, 0))
	return NormalizeTitle(prefixed, maxRunes)
}
