package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fluxnews/internal/config"
	"fluxnews/internal/feed"
	"fluxnews/internal/fulltext"
	"fluxnews/internal/ingest"
	"fluxnews/internal/server"
	"fluxnews/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fluxnews",
	Short:   "RSS news aggregation pipeline",
	Long:    "fluxnews ingests RSS feeds, deduplicates and categorizes articles, and serves them over a JSON API.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("fluxnews", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/fluxnews/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the store backend, feeds and keywords, then run 'fluxnews seed'.")
		return nil
	},
}

// --- seed command ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load feeds and keyword lists from the config file into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()

		// Record keys are derived from record identity, so reseeding
		// updates in place instead of duplicating.
		feeds := make(map[string]any, len(cfg.Sources.Feeds))
		for _, f := range cfg.Sources.Feeds {
			if f.URL == "" {
				continue
			}
			key := uuid.NewSHA1(uuid.NameSpaceURL, []byte(f.URL)).String()
			feeds[key] = ingest.Feed{
				Name:      f.Name,
				URL:       f.URL,
				Language:  f.Language,
				IsGeneric: f.IsGeneric,
			}
		}
		if err := st.Update(ctx, store.Feeds, feeds); err != nil {
			return fmt.Errorf("seeding feeds: %w", err)
		}

		categories := make(map[string]any, len(cfg.Sources.CategoryKeywords))
		for _, c := range cfg.Sources.CategoryKeywords {
			if c.Category == "" || len(c.Keywords) == 0 {
				continue
			}
			key := uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.Category)).String()
			categories[key] = ingest.CategoryKeywords{
				Category: c.Category,
				Keywords: c.Keywords,
			}
		}
		if err := st.Update(ctx, store.CategoryKeywords, categories); err != nil {
			return fmt.Errorf("seeding category keywords: %w", err)
		}

		keywords := make(map[string]any, len(cfg.Sources.GenericKeywords))
		for _, k := range cfg.Sources.GenericKeywords {
			if k == "" {
				continue
			}
			key := uuid.NewSHA1(uuid.NameSpaceOID, []byte("generic:"+k)).String()
			keywords[key] = map[string]string{"value": k}
		}
		if err := st.Update(ctx, store.GenericKeywords, keywords); err != nil {
			return fmt.Errorf("seeding generic keywords: %w", err)
		}

		fmt.Printf("Seeded %d feeds, %d category keyword sets, %d generic keywords.\n",
			len(feeds), len(categories), len(keywords))
		return nil
	},
}

// --- update command ---

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run one ingestion pass over all configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := newIngestor(st).Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("update failed: %w", err)
		}

		fmt.Println("\nUpdate complete:")
		fmt.Printf("  New articles: %d\n", report.NewArticlesCount)
		fmt.Printf("  Items processed: %d\n", report.ProcessedCount)
		fmt.Printf("  Skipped (too old): %d\n", report.SkippedOldCount)
		fmt.Printf("  Skipped (duplicate): %d\n", report.SkippedDuplicateCount)
		fmt.Printf("  Generic included/skipped: %d/%d\n", report.GenericStats.Included, report.GenericStats.Skipped)
		fmt.Printf("  Errors: %d\n", report.ErrorCount)
		fmt.Printf("  Old articles deleted: %d\n", report.DeletedCount)
		fmt.Printf("  Execution time: %s\n", report.ExecutionTime)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server exposing the update trigger and article API",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("POST /api/update-articles triggers an ingestion run. Press Ctrl+C to stop.")
		return server.Serve(st, newIngestor(st), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		counts := make(map[string]int, 4)
		for _, col := range []string{store.Articles, store.Feeds, store.CategoryKeywords, store.GenericKeywords} {
			all, err := st.ReadAll(ctx, col)
			if err != nil {
				return fmt.Errorf("reading %s: %w", col, err)
			}
			counts[col] = len(all)
		}

		fmt.Printf("Store backend: %s\n\n", cfg.Store.Backend)
		fmt.Printf("Articles: %d\n", counts[store.Articles])
		fmt.Printf("Feeds: %d\n", counts[store.Feeds])
		fmt.Printf("Category keyword sets: %d\n", counts[store.CategoryKeywords])
		fmt.Printf("Generic keywords: %d\n", counts[store.GenericKeywords])
		return nil
	},
}

func openStore() (store.Store, error) {
	switch cfg.Store.Backend {
	case "firebase":
		if cfg.Store.Firebase.BaseURL == "" {
			return nil, fmt.Errorf("store.firebase.base_url is required for the firebase backend")
		}
		token := os.Getenv(cfg.Store.Firebase.AuthTokenEnv)
		return store.NewFirebase(cfg.Store.Firebase.BaseURL, token, 30*time.Second), nil
	default:
		return store.OpenSQLite(cfg.SQLitePath())
	}
}

func newIngestor(st store.Store) *ingest.Ingestor {
	timeout := time.Duration(cfg.Ingest.FetchTimeoutSeconds) * time.Second

	opts := ingest.Options{
		RetentionDays:     cfg.Ingest.RetentionDays,
		EvictionBatchSize: cfg.Ingest.EvictionBatchSize,
	}
	if cfg.Ingest.FullTextFallback {
		opts.Fallback = fulltext.New(timeout, cfg.Ingest.UserAgent)
	}

	return ingest.New(st, feed.NewFetcher(timeout, cfg.Ingest.UserAgent), opts)
}
