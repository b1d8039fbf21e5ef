// Package textnorm canonicalizes user text for comparison: accents are
// stripped, whitespace collapsed and case folded. Every matcher in the
// automation engine compares strings only after passing both sides through
// Normalize.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes s (NFD), drops combining marks, collapses whitespace
// runs to a single space, trims and lowercases the result.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.ToLower(strings.Join(strings.Fields(stripped), " "))
}

// Equal reports whether a and b are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
