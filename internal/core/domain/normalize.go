package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var quoteReplacer = strings.NewReplacer(
	"\u2018", "'", // left single quote
	"\u2019", "'", // right single quote / apostrophe
	"\u201A", "'",
	"\u201B", "'",
	"\u2032", "'", // prime
	"\u201C", `"`,
	"\u201D", `"`,
	"\u201E", `"`,
	"\u201F", `"`,
	"\u2033", `"`, // double prime
)

// NormalizeName canonicalizes a free-text product description before matching.
func NormalizeName(raw string) string {
	if raw == "" {
		return ""
	}
	s := quoteReplacer.Replace(norm.NFC.String(raw))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == ' ' {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
