package ingest

import (
	"net/url"
	"strings"
)

// CanonicalURL produces the comparison key used for duplicate detection.
// The full serialized URL is lowercased, a single trailing slash is
// stripped, and the query string is dropped entirely, so two links that
// differ only in tracking parameters collapse to the same key.
// Unparsable input falls back to a lowercased, trimmed copy of the raw
// string; canonicalization never fails.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""

	return strings.TrimSuffix(strings.ToLower(u.String()), "/")
}
