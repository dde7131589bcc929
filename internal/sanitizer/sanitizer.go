// Package sanitizer cleans inbound message text before it reaches the intent
// analyzer or any LLM prompt: Unicode-normalize, truncate, strip known-bad
// patterns, escape HTML, and collapse both whitespace and character spam.
package sanitizer

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxConsecutiveChars bounds repeated-character spam ("aaaaaaaa...") before
// it reaches downstream scoring.
const MaxConsecutiveChars = 100

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)vbscript:`),
}

var (
	onEventAttr  = regexp.MustCompile(`(?i)on\w+\s*=\s*["'][^"']*["']`)
	styleAttr    = regexp.MustCompile(`(?i)style\s*=\s*["'][^"']*["']`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Config controls sanitize behavior.
type Config struct {
	MaxLength int
	Strict    bool
}

// DefaultConfig returns the spec's default sanitize settings.
func DefaultConfig() Config {
	return Config{MaxLength: 4096, Strict: false}
}

// Sanitizer implements the message-cleaning pipeline.
type Sanitizer struct {
	cfg Config
}

// New creates a Sanitizer with the given configuration.
func New(cfg Config) *Sanitizer {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 4096
	}
	return &Sanitizer{cfg: cfg}
}

// Clean runs the full pipeline: NFKC normalize, truncate, strip suspicious
// patterns, (optionally) strip event/style attributes, HTML-escape, strip
// control characters, collapse whitespace, collapse character spam, trim.
func (s *Sanitizer) Clean(input string) string {
	text := norm.NFKC.String(input)

	text = truncate(text, s.cfg.MaxLength)

	for _, pattern := range suspiciousPatterns {
		text = pattern.ReplaceAllString(text, "")
	}

	if s.cfg.Strict {
		text = onEventAttr.ReplaceAllString(text, "")
		text = styleAttr.ReplaceAllString(text, "")
	}

	text = html.EscapeString(text)

	text = stripControlChars(text)

	text = whitespaceRe.ReplaceAllString(text, " ")

	text = collapseConsecutive(text, MaxConsecutiveChars)

	return strings.TrimSpace(text)
}

// truncate cuts a string to at most maxLen runes, preserving UTF-8 boundaries.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// stripControlChars removes non-printable control characters but keeps
// ordinary whitespace (space, tab, newline) for the whitespace collapse step.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == ' ' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseConsecutive shortens any run of the same rune longer than limit
// down to exactly limit repetitions, defeating character-spam floods.
func collapseConsecutive(s string, limit int) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(runes))

	count := 1
	b.WriteRune(runes[0])
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			count++
			if count <= limit {
				b.WriteRune(runes[i])
			}
			continue
		}
		count = 1
		b.WriteRune(runes[i])
	}
	return b.String()
}
