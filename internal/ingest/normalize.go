package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// apostrophes maps curly and prime apostrophe variants to the straight form.
var apostrophes = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"′", "'", // prime
	"`", "'",
)

// NormalizeText lowercases text, strips diacritical marks and unifies
// apostrophe variants so keyword matching is case- and accent-insensitive.
// It is total: any input, including empty, yields a usable result.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(text)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	return strings.TrimSpace(apostrophes.Replace(s))
}
