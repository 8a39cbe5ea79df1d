package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"fluxnews/internal/feed"
	"fluxnews/internal/store"
)

const (
	// DefaultRetentionDays bounds how old an article may be before it
	// is skipped at ingestion and evicted from the store.
	DefaultRetentionDays = 30

	// DefaultEvictionBatchSize bounds how many deletes go into a single
	// store request.
	DefaultEvictionBatchSize = 50
)

// Article is the persisted record for one ingested feed item. Records
// are written once by the pipeline and never mutated afterwards; they
// leave the store only through retention eviction.
type Article struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Link          string   `json:"link"`
	PubDate       string   `json:"pubDate"`
	Source        string   `json:"source"`
	Image         string   `json:"image,omitempty"`
	Author        string   `json:"author"`
	Categories    []string `json:"categories"`
	Language      string   `json:"language"`
	CreatedAt     string   `json:"createdAt"`
	IsFromGeneric bool     `json:"isFromGeneric"`
}

// Feed is a feed configuration record, managed externally.
type Feed struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Language  string `json:"language"`
	IsGeneric bool   `json:"isGeneric"`
}

// GenericStats counts how generic-feed articles fared against the
// global keyword filter.
type GenericStats struct {
	Skipped  int `json:"skipped"`
	Included int `json:"included"`
}

// Report aggregates the counters of one ingestion run.
type Report struct {
	Message               string       `json:"message"`
	NewArticlesCount      int          `json:"newArticlesCount"`
	ProcessedCount        int          `json:"processedCount"`
	SkippedOldCount       int          `json:"skippedOldCount"`
	SkippedDuplicateCount int          `json:"skippedDuplicateCount"`
	ErrorCount            int          `json:"errorCount"`
	DeletedCount          int          `json:"deletedCount"`
	GenericStats          GenericStats `json:"genericStats"`
	ExecutionTime         string       `json:"executionTime"`
}

// FeedSource fetches and parses one feed URL into normalized items.
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]feed.Item, error)
}

// DescriptionFallback supplies article text when a feed entry carries
// none; see the fulltext package.
type DescriptionFallback interface {
	Extract(ctx context.Context, articleURL string) (string, error)
}

// Options tune an Ingestor. Zero values select the defaults.
type Options struct {
	RetentionDays     int
	EvictionBatchSize int

	// Fallback, when set, is consulted for items with an empty
	// description. It runs at creation time only; stored articles are
	// never touched.
	Fallback DescriptionFallback
}

// Ingestor runs the full ingestion pipeline against a store and a feed
// source.
type Ingestor struct {
	store         store.Store
	source        FeedSource
	fallback      DescriptionFallback
	retentionDays int
	evictionBatch int

	now   func() time.Time
	newID func() string
}

// New creates an Ingestor.
func New(st store.Store, source FeedSource, opts Options) *Ingestor {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.EvictionBatchSize <= 0 {
		opts.EvictionBatchSize = DefaultEvictionBatchSize
	}
	return &Ingestor{
		store:         st,
		source:        source,
		fallback:      opts.Fallback,
		retentionDays: opts.RetentionDays,
		evictionBatch: opts.EvictionBatchSize,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Run executes one ingestion pass: load configuration and the existing
// article index, process regular feeds then generic feeds, commit the
// staged batch, evict articles past the retention cutoff, and report.
// Per-feed and per-item faults degrade into counters; only store
// failures abort the run.
func (ing *Ingestor) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	cutoff := ing.now().AddDate(0, 0, -ing.retentionDays)
	log.Printf("starting feed update, cutoff %s", cutoff.UTC().Format(time.RFC3339))

	sets, err := ing.loadCategoryKeywords(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := ing.loadExistingLinks(ctx)
	if err != nil {
		return nil, err
	}
	regular, generic, err := ing.loadFeeds(ctx)
	if err != nil {
		return nil, err
	}
	genericKeywords, err := ing.loadGenericKeywords(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("loaded %d categories, %d existing articles, %d regular / %d generic feeds, %d generic keywords",
		len(sets), len(existing), len(regular), len(generic), len(genericKeywords))

	r := &Report{}
	run := &runState{
		cutoff:          cutoff,
		sets:            sets,
		genericKeywords: genericKeywords,
		existing:        existing,
		batch:           make(map[string]any),
		report:          r,
	}

	// Regular feeds first, then the keyword-gated generic ones.
	for _, fc := range regular {
		ing.processFeed(ctx, fc, false, run)
	}
	for _, fc := range generic {
		ing.processFeed(ctx, fc, true, run)
	}

	if len(run.batch) > 0 {
		log.Printf("committing %d new articles", len(run.batch))
		if err := ing.store.Update(ctx, store.Articles, run.batch); err != nil {
			return nil, fmt.Errorf("committing article batch: %w", err)
		}
	}

	deleted, err := ing.evictOld(ctx, cutoff)
	r.DeletedCount = deleted
	if err != nil {
		return nil, err
	}

	r.Message = fmt.Sprintf("%d new articles added, %d old articles deleted", r.NewArticlesCount, r.DeletedCount)
	r.ExecutionTime = formatDuration(time.Since(start))
	log.Printf("feed update finished in %s: %s", r.ExecutionTime, r.Message)
	return r, nil
}

// runState carries the shared mutable state of one run: the staged
// batch and the link index, both updated per item so later items and
// feeds in the same run see freshly staged articles as duplicates.
type runState struct {
	cutoff          time.Time
	sets            []CategoryKeywords
	genericKeywords []string
	existing        map[string]string
	batch           map[string]any
	report          *Report
}

func (ing *Ingestor) processFeed(ctx context.Context, fc Feed, generic bool, run *runState) {
	items, err := ing.source.Fetch(ctx, fc.URL)
	if err != nil {
		log.Printf("feed %s: %v", fc.URL, err)
		run.report.ErrorCount++
		return
	}

	for _, it := range items {
		ing.processItem(ctx, fc, it, generic, run)
	}
}

func (ing *Ingestor) processItem(ctx context.Context, fc Feed, it feed.Item, generic bool, run *runState) {
	r := run.report
	r.ProcessedCount++

	if it.Title == "" || it.Link == "" {
		return
	}

	if it.Published != nil && it.Published.Before(run.cutoff) {
		r.SkippedOldCount++
		return
	}

	link := CanonicalURL(it.Link)
	if _, dup := run.existing[link]; dup {
		r.SkippedDuplicateCount++
		return
	}

	description := ing.extractDescription(ctx, it)

	if generic {
		if !PassesGenericFilter(it.Title, description, run.genericKeywords) {
			r.GenericStats.Skipped++
			return
		}
		r.GenericStats.Included++
	}

	categories := Categorize(it.Title, description, run.sets)
	if len(categories) == 0 {
		categories = []string{DefaultCategory}
	}

	now := ing.now()
	pub := now
	if it.Published != nil {
		pub = *it.Published
	}

	id := ing.newID()
	run.batch[id] = Article{
		Title:         it.Title,
		Description:   description,
		Link:          it.Link,
		PubDate:       pub.UTC().Format(time.RFC3339),
		Source:        fc.Name,
		Image:         ExtractImage(it),
		Author:        it.Author,
		Categories:    categories,
		Language:      fc.Language,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		IsFromGeneric: generic,
	}
	run.existing[link] = id
	r.NewArticlesCount++
}

// extractDescription prefers the plain description, then the encoded
// content blob, stripping HTML from both; as a last resort it asks the
// fulltext fallback, whose failure just leaves the description empty.
func (ing *Ingestor) extractDescription(ctx context.Context, it feed.Item) string {
	desc := StripHTML(it.Description)
	if desc == "" {
		desc = StripHTML(it.Content)
	}
	if desc == "" && ing.fallback != nil && it.Link != "" {
		text, err := ing.fallback.Extract(ctx, it.Link)
		if err != nil {
			log.Printf("fulltext fallback for %s: %v", it.Link, err)
			return ""
		}
		desc = text
	}
	return desc
}

// evictOld removes every stored article whose pubDate lies before the
// cutoff, deleting in fixed-size batches to bound request payloads.
// Articles with unparsable dates are logged and left alone.
func (ing *Ingestor) evictOld(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := ing.store.ReadAll(ctx, store.Articles)
	if err != nil {
		return 0, fmt.Errorf("reading articles for eviction: %w", err)
	}

	var ids []string
	for id, raw := range all {
		var a Article
		if err := json.Unmarshal(raw, &a); err != nil || a.PubDate == "" {
			continue
		}
		t, err := parsePubDate(a.PubDate)
		if err != nil {
			log.Printf("article %s: unparsable pubDate %q, keeping", id, a.PubDate)
			continue
		}
		if t.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	deleted := 0
	for i := 0; i < len(ids); i += ing.evictionBatch {
		end := min(i+ing.evictionBatch, len(ids))
		entries := make(map[string]any, end-i)
		for _, id := range ids[i:end] {
			entries[id] = nil
		}
		if err := ing.store.Update(ctx, store.Articles, entries); err != nil {
			return deleted, fmt.Errorf("deleting old articles: %w", err)
		}
		deleted += end - i
	}

	if deleted > 0 {
		log.Printf("evicted %d articles older than %s", deleted, cutoff.UTC().Format(time.RFC3339))
	}
	return deleted, nil
}

// parsePubDate reads a stored pubDate. The pipeline writes RFC 3339,
// but records imported from the previous system may carry raw RSS
// date strings.
func parsePubDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f seconds", d.Seconds())
}
