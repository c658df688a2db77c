// Package config provides configuration management for the crawler.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atlasingest/document-crawler/pkg/logger"
)

// Default document extensions and exclude patterns applied when a crawl
// configuration leaves them unset.
var (
	DefaultDocumentExtensions = []string{".pdf", ".docx", ".doc", ".txt", ".md", ".html"}
	DefaultExcludePatterns    = []string{"login", "admin", "auth", "private"}
)

// Config holds all configuration for the crawler process.
type Config struct {
	Crawl    CrawlConfig    `yaml:"crawl"`
	Renderer RendererConfig `yaml:"renderer"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      logger.Config  `yaml:"log"`
}

// CrawlConfig holds the per-run crawl parameters. It is immutable once a
// run starts.
type CrawlConfig struct {
	Name                 string   `yaml:"name"`
	StartURLs            []string `yaml:"start_urls"`
	AllowedDomains       []string `yaml:"allowed_domains"`
	MaxDepth             int      `yaml:"max_depth"`
	MaxPages             int      `yaml:"max_pages"`
	DelayBetweenRequests Duration `yaml:"delay_between_requests"`
	ConcurrentRequests   int      `yaml:"concurrent_requests"`
	MaxConcurrency       int      `yaml:"max_concurrency"`
	DocumentExtensions   []string `yaml:"document_extensions"`
	ExcludePatterns      []string `yaml:"exclude_patterns"`
}

// RendererConfig holds headless browser settings.
type RendererConfig struct {
	UserAgent         string   `yaml:"user_agent"`
	NavigationTimeout Duration `yaml:"navigation_timeout"`
	NetworkIdleWindow Duration `yaml:"network_idle_window"`
	PageLinkLimit     int      `yaml:"page_link_limit"`
	Headless          *bool    `yaml:"headless"`
}

// FetchConfig holds document download settings.
type FetchConfig struct {
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
	UserAgent         string   `yaml:"user_agent"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key"`
	SecretAccessKey string `yaml:"secret_key"`
	BucketName      string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
	Region          string `yaml:"region"`
}

// Enabled reports whether a storage bucket is configured for this run.
func (c StorageConfig) Enabled() bool {
	return c.BucketName != ""
}

// QueueConfig holds NATS configuration.
type QueueConfig struct {
	URL        string `yaml:"url"`
	ClientName string `yaml:"client_name"`
}

// Enabled reports whether a queue endpoint is configured for this run.
func (c QueueConfig) Enabled() bool {
	return c.URL != ""
}

// MetricsConfig holds metrics emission configuration.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration pre-seeded with documented defaults.
// Scalar fields where zero is a meaningful value (max_depth,
// delay_between_requests) must be seeded before unmarshalling so an
// explicit zero in the file is distinguishable from an absent key.
func Default() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth:             3,
			MaxPages:             1000,
			DelayBetweenRequests: DurationFrom(time.Second),
			ConcurrentRequests:   10,
			MaxConcurrency:       16,
		},
	}
}

// Load reads a YAML configuration file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills unset optional fields with documented defaults.
func (c *Config) ApplyDefaults() {
	if len(c.Crawl.DocumentExtensions) == 0 {
		c.Crawl.DocumentExtensions = append([]string(nil), DefaultDocumentExtensions...)
	}
	if len(c.Crawl.ExcludePatterns) == 0 {
		c.Crawl.ExcludePatterns = append([]string(nil), DefaultExcludePatterns...)
	}

	if c.Renderer.UserAgent == "" {
		c.Renderer.UserAgent = "DocumentCrawler/1.0 (+https://atlasingest.io/bot)"
	}
	if c.Renderer.NavigationTimeout.IsZero() {
		c.Renderer.NavigationTimeout = DurationFrom(30 * time.Second)
	}
	if c.Renderer.NetworkIdleWindow.IsZero() {
		c.Renderer.NetworkIdleWindow = DurationFrom(500 * time.Millisecond)
	}
	if c.Renderer.PageLinkLimit == 0 {
		c.Renderer.PageLinkLimit = 50
	}
	if c.Renderer.Headless == nil {
		headless := true
		c.Renderer.Headless = &headless
	}

	if c.Fetch.Timeout.IsZero() {
		c.Fetch.Timeout = DurationFrom(30 * time.Second)
	}
	if c.Fetch.RequestsPerSecond == 0 {
		c.Fetch.RequestsPerSecond = 5
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = c.Renderer.UserAgent
	}

	if c.Queue.ClientName == "" {
		c.Queue.ClientName = "document-crawler"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "document-crawler"
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
}

// applyEnvOverrides lets deployment environments override collaborator
// endpoints and credentials without editing the config file.
func (c *Config) applyEnvOverrides() {
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKeyID = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretAccessKey)
	c.Storage.BucketName = getEnv("STORAGE_BUCKET", c.Storage.BucketName)
	c.Storage.UseSSL = getEnvAsBool("STORAGE_USE_SSL", c.Storage.UseSSL)
	c.Queue.URL = getEnv("NATS_URL", c.Queue.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Crawl.Name == "" {
		return fmt.Errorf("crawl.name is required")
	}
	if len(c.Crawl.StartURLs) == 0 {
		return fmt.Errorf("crawl.start_urls must contain at least one URL")
	}
	if len(c.Crawl.AllowedDomains) == 0 {
		return fmt.Errorf("crawl.allowed_domains must contain at least one domain")
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0")
	}
	if c.Crawl.MaxPages < 1 {
		return fmt.Errorf("crawl.max_pages must be >= 1")
	}
	if c.Crawl.DelayBetweenRequests.Duration < 0 {
		return fmt.Errorf("crawl.delay_between_requests must be >= 0")
	}
	if c.Crawl.ConcurrentRequests < 1 {
		return fmt.Errorf("crawl.concurrent_requests must be >= 1")
	}
	if c.Crawl.MaxConcurrency < 1 {
		return fmt.Errorf("crawl.max_concurrency must be >= 1")
	}
	if c.Storage.Enabled() && c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required when a bucket is configured")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
