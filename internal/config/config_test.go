package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
crawl:
  name: docs-crawler
  start_urls:
    - https://example.com/
  allowed_domains:
    - example.com
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "docs-crawler", cfg.Crawl.Name)
	assert.Equal(t, 3, cfg.Crawl.MaxDepth)
	assert.Equal(t, 1000, cfg.Crawl.MaxPages)
	assert.Equal(t, time.Second, cfg.Crawl.DelayBetweenRequests.Duration)
	assert.Equal(t, 10, cfg.Crawl.ConcurrentRequests)
	assert.Equal(t, 16, cfg.Crawl.MaxConcurrency)
	assert.Equal(t, DefaultDocumentExtensions, cfg.Crawl.DocumentExtensions)
	assert.Equal(t, DefaultExcludePatterns, cfg.Crawl.ExcludePatterns)

	assert.Equal(t, 30*time.Second, cfg.Renderer.NavigationTimeout.Duration)
	assert.Equal(t, 50, cfg.Renderer.PageLinkLimit)
	require.NotNil(t, cfg.Renderer.Headless)
	assert.True(t, *cfg.Renderer.Headless)

	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout.Duration)
	assert.Equal(t, 5, cfg.Fetch.RequestsPerSecond)
	assert.Equal(t, cfg.Renderer.UserAgent, cfg.Fetch.UserAgent)

	assert.False(t, cfg.Storage.Enabled())
	assert.False(t, cfg.Queue.Enabled())
}

func TestLoadExplicitZeroDepthPreserved(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
  max_depth: 0
  delay_between_requests: 0
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Crawl.MaxDepth)
	assert.Equal(t, time.Duration(0), cfg.Crawl.DelayBetweenRequests.Duration)
}

func TestLoadDurationFormats(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
  delay_between_requests: 1.5
renderer:
  navigation_timeout: 45s
`))
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Crawl.DelayBetweenRequests.Duration)
	assert.Equal(t, 45*time.Second, cfg.Renderer.NavigationTimeout.Duration)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", `
crawl:
  start_urls: ["https://example.com/"]
  allowed_domains: ["example.com"]
`},
		{"missing start urls", `
crawl:
  name: x
  allowed_domains: ["example.com"]
`},
		{"missing allowed domains", `
crawl:
  name: x
  start_urls: ["https://example.com/"]
`},
		{"negative depth", minimalConfig + `
  max_depth: -1
`},
		{"zero max pages rejected", minimalConfig + `
  max_pages: 0
`},
		{"storage bucket without endpoint", minimalConfig + `
storage:
  bucket: documents
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_ENDPOINT", "minio:9000")
	t.Setenv("STORAGE_BUCKET", "crawl-docs")
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "crawl-docs", cfg.Storage.BucketName)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "nats://queue:4222", cfg.Queue.URL)
	assert.True(t, cfg.Queue.Enabled())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
