package ingest

import "strings"

// PassesGenericFilter reports whether an article from a generic feed
// clears the global keyword gate. An empty keyword list admits every
// article. Matching is plain substring containment over the normalized
// title and description, deliberately looser than the word-boundary
// rules used for categorization.
func PassesGenericFilter(title, description string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	haystack := NormalizeText(title) + " " + NormalizeText(description)
	for _, kw := range keywords {
		k := NormalizeText(kw)
		if k != "" && strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}
