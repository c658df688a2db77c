// Package report produces the run summary, the crawler's primary external
// artifact. Its JSON shape is consumed by downstream tooling and must stay
// stable.
package report

import (
	"encoding/json"
	"math"
	"time"
)

// Summary is the immutable result of a completed run.
type Summary struct {
	CrawlerName        string    `json:"crawler_name"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	RuntimeSeconds     float64   `json:"runtime_seconds"`
	PagesCrawled       int64     `json:"pages_crawled"`
	DocumentsFound     int64     `json:"documents_found"`
	DocumentsProcessed int64     `json:"documents_processed"`
	ErrorsCount        int64     `json:"errors_count"`
	FailedURLs         []string  `json:"failed_urls"`
	SuccessRate        float64   `json:"success_rate"`
}

// New builds a summary from final counters. The success rate is the share
// of found documents that were fully processed, floored against division
// by zero, as a percentage rounded to two decimals.
func New(name string, start, end time.Time, pagesCrawled, documentsFound, documentsProcessed, errorsCount int64, failedURLs []string) *Summary {
	if failedURLs == nil {
		failedURLs = []string{}
	}

	found := documentsFound
	if found < 1 {
		found = 1
	}
	rate := float64(documentsProcessed) / float64(found) * 100

	return &Summary{
		CrawlerName:        name,
		StartTime:          start,
		EndTime:            end,
		RuntimeSeconds:     round2(end.Sub(start).Seconds()),
		PagesCrawled:       pagesCrawled,
		DocumentsFound:     documentsFound,
		DocumentsProcessed: documentsProcessed,
		ErrorsCount:        errorsCount,
		FailedURLs:         failedURLs,
		SuccessRate:        round2(rate),
	}
}

// JSON renders the summary as indented JSON.
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
