package store

import (
	"context"
	"encoding/json"
)

// Collection names mirror the hosted database tree the admin tooling writes to.
const (
	Articles         = "articles"
	Feeds            = "rssFeeds"
	CategoryKeywords = "categoryKeywords"
	GenericKeywords  = "genericKeywords"
)

// Store is the contract the ingestion pipeline has with the backing
// tree store: read an entire collection, and apply a multi-key update
// where a nil entry value deletes that key.
type Store interface {
	// ReadAll returns every record in a collection keyed by record ID.
	// A missing collection yields an empty map, not an error.
	ReadAll(ctx context.Context, collection string) (map[string]json.RawMessage, error)

	// Update applies all entries in one batch. Non-nil values are
	// marshaled and written, nil values delete the key.
	Update(ctx context.Context, collection string, entries map[string]any) error

	Close() error
}
