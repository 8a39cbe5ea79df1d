package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Sources SourcesConfig `yaml:"sources"`
	Server  Server        `yaml:"server"`
	Logging Logging       `yaml:"logging"`
}

// StoreConfig selects and configures the article store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"` // "sqlite" or "firebase"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Firebase FirebaseConfig `yaml:"firebase"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type FirebaseConfig struct {
	BaseURL      string `yaml:"base_url"`
	AuthTokenEnv string `yaml:"auth_token_env"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	RetentionDays       int    `yaml:"retention_days"`
	EvictionBatchSize   int    `yaml:"eviction_batch_size"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	UserAgent           string `yaml:"user_agent"`
	FullTextFallback    bool   `yaml:"fulltext_fallback"`
}

// SourcesConfig holds seed data for the store; the running pipeline
// reads feeds and keywords from the store itself.
type SourcesConfig struct {
	Feeds            []SeedFeed     `yaml:"feeds"`
	CategoryKeywords []SeedCategory `yaml:"category_keywords"`
	GenericKeywords  []string       `yaml:"generic_keywords"`
}

type SeedFeed struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Language  string `yaml:"language"`
	IsGeneric bool   `yaml:"is_generic"`
}

type SeedCategory struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for fluxnews.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "fluxnews")
}

// DataDir returns the XDG data directory for fluxnews.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "fluxnews")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/fluxnews/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'fluxnews init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: StoreConfig{
			Backend: "sqlite",
			Firebase: FirebaseConfig{
				AuthTokenEnv: "FLUXNEWS_DB_TOKEN",
			},
		},
		Ingest: IngestConfig{
			RetentionDays:       30,
			EvictionBatchSize:   50,
			FetchTimeoutSeconds: 15,
			UserAgent:           "Mozilla/5.0 (compatible; RSS-Reader/1.0)",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Store.Backend {
	case "sqlite", "firebase":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return cfg, nil
}

// SQLitePath returns the effective SQLite database path.
func (c *Config) SQLitePath() string {
	if c.Store.SQLite.Path != "" {
		return c.Store.SQLite.Path
	}
	return filepath.Join(DataDir(), "fluxnews.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
