package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"fluxnews/internal/store"
)

// loadCategoryKeywords reads the category keyword sets, ordered by
// record key so category assignment order is stable across runs.
func (ing *Ingestor) loadCategoryKeywords(ctx context.Context) ([]CategoryKeywords, error) {
	all, err := ing.store.ReadAll(ctx, store.CategoryKeywords)
	if err != nil {
		return nil, fmt.Errorf("loading category keywords: %w", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sets []CategoryKeywords
	for _, key := range keys {
		var set CategoryKeywords
		if err := json.Unmarshal(all[key], &set); err != nil {
			log.Printf("category keywords %s: %v", key, err)
			continue
		}
		if set.Category == "" || len(set.Keywords) == 0 {
			continue
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// loadExistingLinks builds the canonical-link index from the full
// current article set. It is re-derived on every run, which is what
// makes retried runs idempotent.
func (ing *Ingestor) loadExistingLinks(ctx context.Context) (map[string]string, error) {
	all, err := ing.store.ReadAll(ctx, store.Articles)
	if err != nil {
		return nil, fmt.Errorf("loading existing articles: %w", err)
	}

	index := make(map[string]string, len(all))
	for id, raw := range all {
		var a Article
		if err := json.Unmarshal(raw, &a); err != nil {
			log.Printf("article %s: %v", id, err)
			continue
		}
		if a.Link == "" {
			continue
		}
		index[CanonicalURL(a.Link)] = id
	}
	return index, nil
}

// loadFeeds reads the feed configs and partitions them into regular
// and generic feeds, ordered by record key.
func (ing *Ingestor) loadFeeds(ctx context.Context) (regular, generic []Feed, err error) {
	all, err := ing.store.ReadAll(ctx, store.Feeds)
	if err != nil {
		return nil, nil, fmt.Errorf("loading feeds: %w", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var fc Feed
		if err := json.Unmarshal(all[key], &fc); err != nil {
			log.Printf("feed %s: %v", key, err)
			continue
		}
		if fc.URL == "" {
			continue
		}
		if fc.Name == "" {
			fc.Name = "Unknown Source"
		}
		if fc.Language == "" {
			fc.Language = "fr"
		}
		if fc.IsGeneric {
			generic = append(generic, fc)
		} else {
			regular = append(regular, fc)
		}
	}
	return regular, generic, nil
}

// loadGenericKeywords reads the global keyword list used to gate
// generic feeds, normalized once up front.
func (ing *Ingestor) loadGenericKeywords(ctx context.Context) ([]string, error) {
	all, err := ing.store.ReadAll(ctx, store.GenericKeywords)
	if err != nil {
		return nil, fmt.Errorf("loading generic keywords: %w", err)
	}

	var keywords []string
	for id, raw := range all {
		var rec struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Printf("generic keyword %s: %v", id, err)
			continue
		}
		if k := NormalizeText(rec.Value); k != "" {
			keywords = append(keywords, k)
		}
	}
	sort.Strings(keywords)
	return keywords, nil
}
