package sanitizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_StripsScriptTags(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Clean("hello <script>alert(1)</script> world")
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "alert")
}

func TestClean_EscapesHTML(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Clean(`<b>bold</b> & "quotes"`)
	assert.Contains(t, out, "&lt;b&gt;")
	assert.Contains(t, out, "&amp;")
}

func TestClean_StripsJavascriptURIs(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Clean(`click javascript:alert(1) here`)
	assert.NotContains(t, out, "javascript:")
}

func TestClean_StrictModeStripsEventHandlers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strict = true
	s := New(cfg)
	out := s.Clean(`<img onerror="evil()" style="x:1">`)
	assert.NotContains(t, out, "onerror")
	assert.NotContains(t, out, "style=")
}

func TestClean_CollapsesWhitespace(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Clean("hello    \n\n   world")
	assert.Equal(t, "hello world", out)
}

func TestClean_CollapsesCharacterSpam(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Clean(strings.Repeat("a", 500))
	assert.LessOrEqual(t, len(out), MaxConsecutiveChars)
}

func TestClean_TruncatesToMaxLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 10
	s := New(cfg)
	out := s.Clean(strings.Repeat("x", 100))
	assert.LessOrEqual(t, len([]rune(out)), 10)
}

func TestClean_TrimsSurroundingSpace(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Clean("   hi there   ")
	assert.Equal(t, "hi there", out)
}

func TestClean_NormalizesUnicode(t *testing.T) {
	s := New(DefaultConfig())
	// Fullwidth digits should normalize under NFKC.
	out := s.Clean("１２３")
	assert.Equal(t, "123", out)
}
