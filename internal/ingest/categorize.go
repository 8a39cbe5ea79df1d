package ingest

import (
	"regexp"
	"strings"
)

// DefaultCategory is assigned when no keyword set matches an article.
const DefaultCategory = "General"

// CategoryKeywords maps one category to its match keywords. The slice
// order of the loaded records determines the order of assigned categories.
type CategoryKeywords struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// Categorize returns the categories whose keywords match the combined
// title and description. Single-word keywords must match at a word
// boundary ("ai" must not match inside "main"); multi-word keywords
// must appear as a space-delimited phrase. The first matching keyword
// settles a category. An empty result means the caller should fall
// back to DefaultCategory.
func Categorize(title, description string, sets []CategoryKeywords) []string {
	haystack := NormalizeText(title + " " + description)
	padded := " " + haystack + " "

	var matched []string
	seen := make(map[string]struct{})

	for _, set := range sets {
		if _, dup := seen[set.Category]; dup {
			continue
		}
		for _, kw := range set.Keywords {
			k := NormalizeText(kw)
			if k == "" {
				continue
			}

			var hit bool
			if strings.Contains(k, " ") {
				hit = strings.Contains(padded, " "+k+" ")
			} else {
				re, err := regexp.Compile(`\b` + regexp.QuoteMeta(k) + `\b`)
				hit = err == nil && re.MatchString(haystack)
			}

			if hit {
				matched = append(matched, set.Category)
				seen[set.Category] = struct{}{}
				break
			}
		}
	}

	return matched
}
