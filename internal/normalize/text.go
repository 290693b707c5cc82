package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

const (
	MaxTitle       = 255
	MaxDescription = 2000
	MaxShort       = 255
)

var (
	htmlStripper = bluemonday.StrictPolicy()
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanText strips markup, decodes entities, folds whitespace and caps the
// result at max runes. max <= 0 means no cap.
func CleanText(s string, max int) string {
	if s == "" {
		return ""
	}

	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	s = norm.NFC.String(s)
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return Truncate(s, max)
}

// Truncate cuts s to at most max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}

	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
