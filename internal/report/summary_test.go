package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSummary(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	s := New("docs-crawler", start, end, 12, 8, 6, 2, []string{"https://example.com/broken"})

	assert.Equal(t, "docs-crawler", s.CrawlerName)
	assert.Equal(t, 90.0, s.RuntimeSeconds)
	assert.Equal(t, int64(12), s.PagesCrawled)
	assert.Equal(t, int64(8), s.DocumentsFound)
	assert.Equal(t, int64(6), s.DocumentsProcessed)
	assert.Equal(t, int64(2), s.ErrorsCount)
	assert.Equal(t, 75.0, s.SuccessRate)
}

func TestNewSummaryNoDocuments(t *testing.T) {
	now := time.Now().UTC()

	s := New("docs-crawler", now, now, 5, 0, 0, 0, nil)

	assert.Equal(t, 0.0, s.SuccessRate)
	assert.NotNil(t, s.FailedURLs)
	assert.Empty(t, s.FailedURLs)
}

func TestNewSummaryRounding(t *testing.T) {
	now := time.Now().UTC()

	s := New("docs-crawler", now, now, 0, 3, 1, 0, nil)

	// 1/3 as a percentage, rounded to two decimals.
	assert.Equal(t, 33.33, s.SuccessRate)
}

func TestSummaryJSONFieldNames(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	s := New("docs-crawler", start, start.Add(time.Second), 1, 1, 1, 0, nil)

	out, err := s.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	for _, field := range []string{
		"crawler_name",
		"start_time",
		"end_time",
		"runtime_seconds",
		"pages_crawled",
		"documents_found",
		"documents_processed",
		"errors_count",
		"failed_urls",
		"success_rate",
	} {
		assert.Contains(t, decoded, field)
	}

	// Empty failed set serializes as [], not null.
	assert.Equal(t, []any{}, decoded["failed_urls"])
}
