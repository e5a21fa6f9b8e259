package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// File names of the per-site pipeline state, relative to the site's data
// directory.
const (
	SnapshotsFile       = "urls_wayback.csv"
	UncleanedLinksFile  = "urls_uncleaned.csv"
	CleanedLinksFile    = "urls_cleaned.csv"
	ArticlesFile        = "articles.json"
	CleanedArticlesFile = "articles_cleaned.jsonl"
)

// DefaultConfigPath is used when neither a flag nor WAYBACKFED_CONFIG names
// a configuration file.
const DefaultConfigPath = "config/sites.yaml"

// Custom errors for configuration lookups
var (
	ErrUnknownSite = errors.New("site is not configured as a target")
	ErrInvalid     = errors.New("invalid configuration")
)

// SeedConfig is a single original-site URL whose captures are looked up for
// every day between StartYear and EndYear inclusive.
type SeedConfig struct {
	Link      string   `yaml:"link"`
	StartYear int      `yaml:"start_year"`
	EndYear   int      `yaml:"end_year"`
	Aliases   []string `yaml:"aliases,omitempty"` // checked in the same pass, e.g. index-page redirect targets
}

// Targets returns the seed link followed by its aliases, without duplicates.
func (s SeedConfig) Targets() []string {
	targets := []string{s.Link}
	for _, alias := range s.Aliases {
		if alias != "" && !slices.Contains(targets, alias) {
			targets = append(targets, alias)
		}
	}
	return targets
}

// SiteConfig describes one news site.
type SiteConfig struct {
	BaseURL string       `yaml:"base_url"` // domain substring used by the link filter
	Seeds   []SeedConfig `yaml:"seeds"`
	Exclude []string     `yaml:"exclude,omitempty"` // non-article path markers
}

// ArchiveConfig controls the snapshot lookup and snapshot page fetches.
type ArchiveConfig struct {
	LookupURL string        `yaml:"lookup_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Delay     time.Duration `yaml:"delay"`
}

// ArticleConfig controls live article extraction.
type ArticleConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	RespectRobots bool          `yaml:"respect_robots"`
}

// ProxyConfig holds the optional scraping proxy credential. The key itself
// is never read from the file; it comes from SCRAPERAPI_KEY.
type ProxyConfig struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Key  string `yaml:"-"`
}

// Enabled reports whether a proxy credential is available.
func (p ProxyConfig) Enabled() bool {
	return p.Key != "" && p.Host != ""
}

// URL returns the proxy URL to use for requests with the given scheme, or
// nil when no proxy is configured.
func (p ProxyConfig) URL(scheme string) *url.URL {
	if !p.Enabled() {
		return nil
	}
	if scheme != "https" {
		scheme = "http"
	}
	return &url.URL{
		Scheme: scheme,
		User:   url.UserPassword(p.User, p.Key),
		Host:   p.Host,
	}
}

// MongoConfig configures the optional article mirror.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// StorageConfig configures storage outside the per-site flat files.
type StorageConfig struct {
	Ledger string      `yaml:"ledger"`
	Mongo  MongoConfig `yaml:"mongo"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

// FileConfig represents the structure of the sites configuration file.
type FileConfig struct {
	DataDir string                `yaml:"data_dir"`
	Targets []string              `yaml:"targets"`
	Sites   map[string]SiteConfig `yaml:"sites"`
	Archive ArchiveConfig         `yaml:"archive"`
	Article ArticleConfig         `yaml:"article"`
	Proxy   ProxyConfig           `yaml:"proxy"`
	Storage StorageConfig         `yaml:"storage"`
	Log     LogConfig             `yaml:"log"`
}

// Default returns a configuration with every default applied and no sites.
func Default() *FileConfig {
	return &FileConfig{
		DataDir: "data",
		Targets: []string{"cnn", "foxnews"},
		Sites:   map[string]SiteConfig{},
		Archive: ArchiveConfig{
			LookupURL: "https://archive.org/wayback/available",
			Timeout:   30 * time.Second,
			Delay:     200 * time.Millisecond,
		},
		Article: ArticleConfig{
			Timeout:   15 * time.Second,
			UserAgent: "waybackfed/1.0 (news archive research)",
		},
		Proxy: ProxyConfig{
			Host: "proxy-server.scraperapi.com:8001",
			User: "scraperapi",
		},
		Storage: StorageConfig{
			Mongo: MongoConfig{
				Database:   "waybackfed",
				Collection: "articles",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile loads configuration from path on top of the defaults,
// applies environment overrides and validates the result.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()
	cfg.applySiteDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv applies environment variable overrides. Environment values take
// precedence over the file.
func (c *FileConfig) ApplyEnv() {
	if val := os.Getenv("WAYBACKFED_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("WAYBACKFED_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("WAYBACKFED_LEDGER_DSN"); val != "" {
		c.Storage.Ledger = val
	}
	if val := os.Getenv("WAYBACKFED_MONGO_URI"); val != "" {
		c.Storage.Mongo.URI = val
	}
	if val := os.Getenv("SCRAPERAPI_KEY"); val != "" {
		c.Proxy.Key = val
	}
}

func (c *FileConfig) applySiteDefaults() {
	for name, site := range c.Sites {
		if site.Exclude == nil {
			site.Exclude = []string{"/video/"}
		}
		c.Sites[name] = site
	}
}

// Validate checks that every target site is fully described.
func (c *FileConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalid)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no target sites", ErrInvalid)
	}
	if c.Archive.LookupURL == "" {
		return fmt.Errorf("%w: archive.lookup_url is empty", ErrInvalid)
	}
	if c.Archive.Timeout <= 0 || c.Article.Timeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	if c.Archive.Delay < 0 {
		return fmt.Errorf("%w: archive.delay must not be negative", ErrInvalid)
	}

	for _, name := range c.Targets {
		site, ok := c.Sites[name]
		if !ok {
			return fmt.Errorf("%w: target %q has no site entry", ErrInvalid, name)
		}
		if site.BaseURL == "" {
			return fmt.Errorf("%w: site %q has no base_url", ErrInvalid, name)
		}
		if len(site.Seeds) == 0 {
			return fmt.Errorf("%w: site %q has no seeds", ErrInvalid, name)
		}
		for i, seed := range site.Seeds {
			if seed.Link == "" {
				return fmt.Errorf("%w: site %q seed %d has no link", ErrInvalid, name, i)
			}
			if seed.StartYear <= 0 || seed.EndYear < seed.StartYear {
				return fmt.Errorf("%w: site %q seed %d has year range %d-%d",
					ErrInvalid, name, i, seed.StartYear, seed.EndYear)
			}
		}
	}

	return nil
}

// Site returns the configuration for a target site.
func (c *FileConfig) Site(name string) (SiteConfig, error) {
	if !slices.Contains(c.Targets, name) {
		return SiteConfig{}, fmt.Errorf("%w: %s", ErrUnknownSite, name)
	}
	site, ok := c.Sites[name]
	if !ok {
		return SiteConfig{}, fmt.Errorf("%w: %s", ErrUnknownSite, name)
	}
	return site, nil
}

// SitePath returns the path to a file in the site's data directory.
func (c *FileConfig) SitePath(site, filename string) string {
	return filepath.Join(c.DataDir, site, filename)
}

// EnsureSiteDir creates the site's data directory if it doesn't exist.
func (c *FileConfig) EnsureSiteDir(site string) error {
	if err := os.MkdirAll(filepath.Join(c.DataDir, site), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory for %s: %w", site, err)
	}
	return nil
}

// LedgerPath returns the run ledger database path, defaulting to a file in
// the data directory.
func (c *FileConfig) LedgerPath() string {
	if c.Storage.Ledger != "" {
		return c.Storage.Ledger
	}
	return filepath.Join(c.DataDir, "ledger.db")
}
