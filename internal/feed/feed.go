package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; RSS-Reader/1.0)"
	acceptHeader     = "application/rss+xml, application/xml, text/xml, */*"
)

// Item is the normalized form of one feed entry. All optional RSS
// shapes (enclosures, media extensions, encoded content) are flattened
// here once so the ingestion pipeline never touches parser internals.
type Item struct {
	Title              string
	Link               string
	Published          *time.Time
	Author             string
	Description        string // raw <description>, may contain HTML
	Content            string // <content:encoded> HTML blob
	EnclosureURL       string
	MediaContentURLs   []string
	MediaThumbnailURLs []string
	Categories         []string
}

// Fetcher downloads and parses RSS/Atom feeds.
type Fetcher struct {
	client    *http.Client
	userAgent string
	parser    *gofeed.Parser
}

// NewFetcher creates a Fetcher with the given per-request timeout.
// A zero timeout or empty user agent falls back to the defaults.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		parser:    gofeed.NewParser(),
	}
}

// Fetch downloads one feed and returns its normalized items.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching feed: HTTP %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		items = append(items, normalizeItem(it))
	}
	return items, nil
}

func normalizeItem(it *gofeed.Item) Item {
	out := Item{
		Title:       strings.TrimSpace(it.Title),
		Link:        strings.TrimSpace(it.Link),
		Description: it.Description,
		Content:     it.Content,
		Categories:  it.Categories,
	}

	if out.Link == "" {
		out.Link = strings.TrimSpace(it.GUID)
	}

	if it.PublishedParsed != nil {
		out.Published = it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		out.Published = it.UpdatedParsed
	}

	if it.Author != nil {
		out.Author = strings.TrimSpace(it.Author.Name)
	}
	if out.Author == "" && it.DublinCoreExt != nil && len(it.DublinCoreExt.Creator) > 0 {
		out.Author = strings.TrimSpace(it.DublinCoreExt.Creator[0])
	}

	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" {
			out.EnclosureURL = enc.URL
			break
		}
	}

	if media, ok := it.Extensions["media"]; ok {
		for _, e := range media["content"] {
			if u := e.Attrs["url"]; u != "" {
				out.MediaContentURLs = append(out.MediaContentURLs, u)
			}
		}
		for _, e := range media["thumbnail"] {
			if u := e.Attrs["url"]; u != "" {
				out.MediaThumbnailURLs = append(out.MediaThumbnailURLs, u)
			}
		}
	}

	return out
}
