package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"fluxnews/internal/feed"
	"fluxnews/internal/store"
)

// fakeSource serves canned items per feed URL.
type fakeSource struct {
	items map[string][]feed.Item
	errs  map[string]error
}

func (f *fakeSource) Fetch(_ context.Context, url string) ([]feed.Item, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.items[url], nil
}

var baseTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestIngestor(t *testing.T, st store.Store, source FeedSource) *Ingestor {
	t.Helper()
	ing := New(st, source, Options{})
	ing.now = func() time.Time { return baseTime }
	seq := 0
	ing.newID = func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return ing
}

func seedFeed(t *testing.T, st store.Store, key string, fc Feed) {
	t.Helper()
	if err := st.Update(context.Background(), store.Feeds, map[string]any{key: fc}); err != nil {
		t.Fatalf("seeding feed: %v", err)
	}
}

func fresh(title, link string) feed.Item {
	pub := baseTime.AddDate(0, 0, -1)
	return feed.Item{Title: title, Link: link, Published: &pub, Description: "Description de " + title}
}

func storedArticles(t *testing.T, st store.Store) map[string]Article {
	t.Helper()
	raw, err := st.ReadAll(context.Background(), store.Articles)
	if err != nil {
		t.Fatalf("reading articles: %v", err)
	}
	out := make(map[string]Article, len(raw))
	for id, r := range raw {
		var a Article
		if err := json.Unmarshal(r, &a); err != nil {
			t.Fatalf("decoding article %s: %v", id, err)
		}
		out[id] = a
	}
	return out
}

func TestRunIngestsFreshItems(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Exemple", URL: "https://exemple.fr/rss", Language: "fr"})

	source := &fakeSource{items: map[string][]feed.Item{
		"https://exemple.fr/rss": {
			fresh("Premier", "https://exemple.fr/1"),
			fresh("Deuxième", "https://exemple.fr/2"),
			fresh("Troisième", "https://exemple.fr/3"),
		},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.NewArticlesCount != 3 {
		t.Errorf("expected 3 new articles, got %d", r.NewArticlesCount)
	}
	if r.SkippedDuplicateCount != 0 {
		t.Errorf("expected 0 duplicates, got %d", r.SkippedDuplicateCount)
	}
	if r.ProcessedCount != 3 {
		t.Errorf("expected 3 processed, got %d", r.ProcessedCount)
	}

	arts := storedArticles(t, st)
	if len(arts) != 3 {
		t.Fatalf("expected 3 stored articles, got %d", len(arts))
	}
	for _, a := range arts {
		if a.Source != "Exemple" || a.Language != "fr" {
			t.Errorf("article carries wrong feed attribution: %+v", a)
		}
		if a.IsFromGeneric {
			t.Error("regular feed article flagged as generic")
		}
		if len(a.Categories) != 1 || a.Categories[0] != DefaultCategory {
			t.Errorf("expected default category, got %v", a.Categories)
		}
		if a.CreatedAt != baseTime.Format(time.RFC3339) {
			t.Errorf("unexpected createdAt %q", a.CreatedAt)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Exemple", URL: "https://exemple.fr/rss"})

	source := &fakeSource{items: map[string][]feed.Item{
		"https://exemple.fr/rss": {
			fresh("Premier", "https://exemple.fr/1"),
			fresh("Deuxième", "https://exemple.fr/2"),
		},
	}}

	ing := newTestIngestor(t, st, source)
	first, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.NewArticlesCount != 2 {
		t.Fatalf("expected 2 new articles, got %d", first.NewArticlesCount)
	}

	second, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.NewArticlesCount != 0 {
		t.Errorf("expected 0 new articles on rerun, got %d", second.NewArticlesCount)
	}
	if second.SkippedDuplicateCount != first.NewArticlesCount {
		t.Errorf("expected %d duplicates, got %d", first.NewArticlesCount, second.SkippedDuplicateCount)
	}
}

func TestRunCatchesDuplicatesAcrossFeedsWithinRun(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Un", URL: "https://un.fr/rss"})
	seedFeed(t, st, "f2", Feed{Name: "Deux", URL: "https://deux.fr/rss"})

	// Same story syndicated with a tracking query on the second feed.
	source := &fakeSource{items: map[string][]feed.Item{
		"https://un.fr/rss":   {fresh("Histoire", "https://exemple.fr/histoire")},
		"https://deux.fr/rss": {fresh("Histoire", "https://exemple.fr/histoire/?utm_source=deux")},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.NewArticlesCount != 1 {
		t.Errorf("expected 1 new article, got %d", r.NewArticlesCount)
	}
	if r.SkippedDuplicateCount != 1 {
		t.Errorf("expected 1 within-run duplicate, got %d", r.SkippedDuplicateCount)
	}
}

func TestRunSkipsItemsMissingRequiredFields(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Exemple", URL: "https://exemple.fr/rss"})

	source := &fakeSource{items: map[string][]feed.Item{
		"https://exemple.fr/rss": {
			{Title: "", Link: "https://exemple.fr/sans-titre"},
			{Title: "Sans lien", Link: ""},
			fresh("Valide", "https://exemple.fr/ok"),
		},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.ProcessedCount != 3 {
		t.Errorf("expected 3 processed, got %d", r.ProcessedCount)
	}
	if r.NewArticlesCount != 1 {
		t.Errorf("expected 1 new article, got %d", r.NewArticlesCount)
	}
	if r.ErrorCount != 0 {
		t.Errorf("missing fields are skips, not errors; got %d errors", r.ErrorCount)
	}
}

func TestRunSkipsOldItemsAndEvictsStoredOnes(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Exemple", URL: "https://exemple.fr/rss"})

	// Already stored article 31 days old: must be evicted.
	old := baseTime.AddDate(0, 0, -31)
	err := st.Update(context.Background(), store.Articles, map[string]any{
		"stale": Article{
			Title:   "Vieille histoire",
			Link:    "https://exemple.fr/vieille",
			PubDate: old.Format(time.RFC3339),
		},
	})
	if err != nil {
		t.Fatalf("seeding stale article: %v", err)
	}

	oldPub := baseTime.AddDate(0, 0, -31)
	source := &fakeSource{items: map[string][]feed.Item{
		"https://exemple.fr/rss": {
			{Title: "Trop vieux", Link: "https://exemple.fr/ancien", Published: &oldPub},
			fresh("Récent", "https://exemple.fr/recent"),
		},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.SkippedOldCount != 1 {
		t.Errorf("expected 1 old skip, got %d", r.SkippedOldCount)
	}
	if r.NewArticlesCount != 1 {
		t.Errorf("expected 1 new article, got %d", r.NewArticlesCount)
	}
	if r.DeletedCount != 1 {
		t.Errorf("expected 1 evicted article, got %d", r.DeletedCount)
	}

	arts := storedArticles(t, st)
	if _, stale := arts["stale"]; stale {
		t.Error("stale article still present after eviction")
	}
	for _, a := range arts {
		if a.Title == "Trop vieux" {
			t.Error("old item must never reach the committed batch")
		}
	}
}

func TestRunKeepsArticlesWithUnparsableDates(t *testing.T) {
	st := store.NewMemory()
	err := st.Update(context.Background(), store.Articles, map[string]any{
		"odd": Article{
			Title:   "Date étrange",
			Link:    "https://exemple.fr/etrange",
			PubDate: "pas une date",
		},
	})
	if err != nil {
		t.Fatalf("seeding article: %v", err)
	}

	ing := newTestIngestor(t, st, &fakeSource{})
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.DeletedCount != 0 {
		t.Errorf("unparsable dates must be excluded from eviction, got %d deletes", r.DeletedCount)
	}
	if len(storedArticles(t, st)) != 1 {
		t.Error("article with unparsable date was deleted")
	}
}

func TestRunGenericFeedFiltering(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Générique", URL: "https://gen.fr/rss", IsGeneric: true})
	err := st.Update(context.Background(), store.GenericKeywords, map[string]any{
		"k1": map[string]string{"value": "Ukraine"},
	})
	if err != nil {
		t.Fatalf("seeding keywords: %v", err)
	}

	match := fresh("La situation en Ukraine", "https://gen.fr/match")
	miss := fresh("Recette du dimanche", "https://gen.fr/miss")
	source := &fakeSource{items: map[string][]feed.Item{
		"https://gen.fr/rss": {match, miss},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.GenericStats.Included != 1 || r.GenericStats.Skipped != 1 {
		t.Errorf("expected included/skipped 1/1, got %d/%d", r.GenericStats.Included, r.GenericStats.Skipped)
	}
	if r.NewArticlesCount != 1 {
		t.Errorf("expected 1 new article, got %d", r.NewArticlesCount)
	}

	for _, a := range storedArticles(t, st) {
		if !a.IsFromGeneric {
			t.Error("generic feed article must carry the generic flag")
		}
		if a.Title == "Recette du dimanche" {
			t.Error("filtered generic article must not be stored")
		}
	}
}

func TestRunGenericFeedWithoutKeywordsIncludesEverything(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Générique", URL: "https://gen.fr/rss", IsGeneric: true})

	source := &fakeSource{items: map[string][]feed.Item{
		"https://gen.fr/rss": {fresh("Recette du dimanche", "https://gen.fr/recette")},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.GenericStats.Included != 1 || r.GenericStats.Skipped != 0 {
		t.Errorf("empty keyword list must count items as included, got %d/%d",
			r.GenericStats.Included, r.GenericStats.Skipped)
	}
	if r.NewArticlesCount != 1 {
		t.Errorf("expected 1 new article, got %d", r.NewArticlesCount)
	}
}

func TestRunFeedFailureIsNotFatal(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Cassé", URL: "https://down.fr/rss"})
	seedFeed(t, st, "f2", Feed{Name: "Sain", URL: "https://up.fr/rss"})

	source := &fakeSource{
		items: map[string][]feed.Item{"https://up.fr/rss": {fresh("Ça marche", "https://up.fr/1")}},
		errs:  map[string]error{"https://down.fr/rss": errors.New("connection refused")},
	}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run must survive a feed failure: %v", err)
	}
	if r.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", r.ErrorCount)
	}
	if r.NewArticlesCount != 1 {
		t.Errorf("expected healthy feed to be ingested, got %d new", r.NewArticlesCount)
	}
}

func TestRunCategorizesAndExtracts(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Exemple", URL: "https://exemple.fr/rss", Language: "fr"})
	err := st.Update(context.Background(), store.CategoryKeywords, map[string]any{
		"c1": CategoryKeywords{Category: "Politique", Keywords: []string{"élection"}},
	})
	if err != nil {
		t.Fatalf("seeding keywords: %v", err)
	}

	pub := baseTime.AddDate(0, 0, -2)
	source := &fakeSource{items: map[string][]feed.Item{
		"https://exemple.fr/rss": {{
			Title:        "Résultats de l'élection",
			Link:         "https://exemple.fr/elections",
			Published:    &pub,
			Author:       "Jeanne Martin",
			Description:  "<p>Le dépouillement est <b>terminé</b>.</p>",
			EnclosureURL: "https://exemple.fr/urne.jpg",
		}},
	}}

	ing := newTestIngestor(t, st, source)
	if _, err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	arts := storedArticles(t, st)
	if len(arts) != 1 {
		t.Fatalf("expected 1 article, got %d", len(arts))
	}
	for _, a := range arts {
		if len(a.Categories) != 1 || a.Categories[0] != "Politique" {
			t.Errorf("expected [Politique], got %v", a.Categories)
		}
		if a.Description != "Le dépouillement est terminé ." && a.Description != "Le dépouillement est terminé." {
			t.Errorf("expected HTML-stripped description, got %q", a.Description)
		}
		if a.Image != "https://exemple.fr/urne.jpg" {
			t.Errorf("expected enclosure image, got %q", a.Image)
		}
		if a.Author != "Jeanne Martin" {
			t.Errorf("expected author, got %q", a.Author)
		}
		if a.PubDate != pub.Format(time.RFC3339) {
			t.Errorf("unexpected pubDate %q", a.PubDate)
		}
	}
}

func TestRunItemWithoutDateDefaultsToNow(t *testing.T) {
	st := store.NewMemory()
	seedFeed(t, st, "f1", Feed{Name: "Exemple", URL: "https://exemple.fr/rss"})

	source := &fakeSource{items: map[string][]feed.Item{
		"https://exemple.fr/rss": {{Title: "Sans date", Link: "https://exemple.fr/sans-date"}},
	}}

	ing := newTestIngestor(t, st, source)
	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.SkippedOldCount != 0 {
		t.Errorf("undated items are not old, got %d old skips", r.SkippedOldCount)
	}
	for _, a := range storedArticles(t, st) {
		if a.PubDate != baseTime.Format(time.RFC3339) {
			t.Errorf("expected ingestion-time pubDate, got %q", a.PubDate)
		}
	}
}

func TestRunEvictionUsesBatches(t *testing.T) {
	st := store.NewMemory()

	old := baseTime.AddDate(0, 0, -40)
	entries := make(map[string]any)
	for i := 0; i < 7; i++ {
		entries[fmt.Sprintf("old-%d", i)] = Article{
			Title:   fmt.Sprintf("Vieux %d", i),
			Link:    fmt.Sprintf("https://exemple.fr/vieux/%d", i),
			PubDate: old.Format(time.RFC3339),
		}
	}
	if err := st.Update(context.Background(), store.Articles, entries); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	ing := New(st, &fakeSource{}, Options{EvictionBatchSize: 3})
	ing.now = func() time.Time { return baseTime }

	r, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.DeletedCount != 7 {
		t.Errorf("expected 7 deletions across batches, got %d", r.DeletedCount)
	}
	if left := storedArticles(t, st); len(left) != 0 {
		t.Errorf("expected empty store, %d articles left", len(left))
	}
}

type failingStore struct {
	store.Store
}

func (f *failingStore) ReadAll(context.Context, string) (map[string]json.RawMessage, error) {
	return nil, errors.New("store unavailable")
}

func TestRunLoadFailureIsFatal(t *testing.T) {
	ing := newTestIngestor(t, &failingStore{Store: store.NewMemory()}, &fakeSource{})
	if _, err := ing.Run(context.Background()); err == nil {
		t.Error("expected fatal error when the load phase cannot read the store")
	}
}
