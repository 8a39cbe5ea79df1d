package fulltext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 2 << 20 // cap page downloads at 2 MiB
	minTextLength  = 100
)

// Extractor fetches an article page and pulls readable text out of it.
// The ingestion pipeline uses it as a last-resort description source
// for items whose feed entry carries no usable text.
type Extractor struct {
	client    *http.Client
	userAgent string
}

// New creates an Extractor with the given per-request timeout.
func New(timeout time.Duration, userAgent string) *Extractor {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Extractor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
	}
}

// Extract downloads the page at articleURL and returns its readable
// text content. Pages with no meaningful extractable text yield an error.
func (e *Extractor) Extract(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching page: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading page: %w", err)
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minTextLength {
		return "", errors.New("no extractable content")
	}
	return text, nil
}
