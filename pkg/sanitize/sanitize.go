// Package sanitize normalizes free text read from catalog files.
//
// Normalization is lossy: anything outside 7-bit ASCII is dropped, not
// transliterated, and invalid UTF-8 is dropped with it.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// Text strips non-ASCII runes and surrounding whitespace.
func Text(raw string) string {
	cleaned, _, err := transform.String(asciiOnly, raw)
	if err != nil {
		cleaned = stripSlow(raw)
	}
	return strings.TrimSpace(cleaned)
}

// Field is Text for optional values; nil stays nil.
func Field(raw *string) *string {
	if raw == nil {
		return nil
	}
	cleaned := Text(*raw)
	return &cleaned
}

func stripSlow(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] <= unicode.MaxASCII {
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}
