package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Firebase talks to a Firebase Realtime Database over its REST API.
// Collections map to top-level nodes; a PATCH with null values deletes
// the corresponding keys, which is exactly the Update contract.
type Firebase struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewFirebase creates a client for the database at baseURL
// (e.g. https://myproject-default-rtdb.europe-west1.firebasedatabase.app).
// authToken may be empty for databases with open rules.
func NewFirebase(baseURL, authToken string, timeout time.Duration) *Firebase {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Firebase{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (f *Firebase) endpoint(collection string) string {
	url := f.baseURL + "/" + collection + ".json"
	if f.authToken != "" {
		url += "?auth=" + f.authToken
	}
	return url
}

// ReadAll fetches an entire node. Firebase returns the literal "null"
// for a missing node; that decodes to an empty map here.
func (f *Firebase) ReadAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint(collection), nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", collection, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reading %s: HTTP %d", collection, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w", collection, err)
	}

	out := make(map[string]json.RawMessage)
	if string(bytes.TrimSpace(body)) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", collection, err)
	}
	return out, nil
}

// Update PATCHes the batch onto the node in one request.
func (f *Firebase) Update(ctx context.Context, collection string, entries map[string]any) error {
	if len(entries) == 0 {
		return nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling %s batch: %w", collection, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, f.endpoint(collection), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building update for %s: %w", collection, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("updating %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("updating %s: HTTP %d", collection, resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (f *Firebase) Close() error { return nil }
