package crawler

import (
	"sort"
	"sync"
	"sync/atomic"
)

// State is the per-run visited/dedup registry. One instance is created per
// run, mutated by every in-flight visit and document task, and discarded
// once the summary is produced. All methods are safe for concurrent use.
type State struct {
	mu       sync.Mutex
	maxPages int
	visited  map[string]struct{}
	docs     map[string]struct{}
	failed   map[string]struct{}

	pagesCrawled       atomic.Int64
	documentsFound     atomic.Int64
	documentsProcessed atomic.Int64
	errors             atomic.Int64
}

// NewState creates an empty registry. maxPages bounds how many page URLs
// can ever be reserved; <= 0 means unbounded.
func NewState(maxPages int) *State {
	return &State{
		maxPages: maxPages,
		visited:  make(map[string]struct{}),
		docs:     make(map[string]struct{}),
		failed:   make(map[string]struct{}),
	}
}

// TryReserveVisit atomically claims a page URL for visiting. It returns
// false if the URL was already reserved or the page ceiling is reached.
// The ceiling check lives inside the critical section so the size of the
// visited set never exceeds maxPages, however many callers race.
func (s *State) TryReserveVisit(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visited[url]; ok {
		return false
	}
	if s.maxPages > 0 && len(s.visited) >= s.maxPages {
		return false
	}
	s.visited[url] = struct{}{}
	return true
}

// TryReserveDocument atomically claims a document URL for processing.
func (s *State) TryReserveDocument(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[url]; ok {
		return false
	}
	s.docs[url] = struct{}{}
	return true
}

// RecordFailure records a URL whose visit failed. Idempotent.
func (s *State) RecordFailure(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[url] = struct{}{}
}

// VisitedCount returns the number of reserved page URLs.
func (s *State) VisitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// Counter increments.

// AddPageCrawled records a successfully rendered page.
func (s *State) AddPageCrawled() { s.pagesCrawled.Add(1) }

// AddDocumentsFound records n discovered document links.
func (s *State) AddDocumentsFound(n int) { s.documentsFound.Add(int64(n)) }

// AddDocumentProcessed records a fully dispatched document.
func (s *State) AddDocumentProcessed() { s.documentsProcessed.Add(1) }

// AddError records a recoverable error.
func (s *State) AddError() { s.errors.Add(1) }

// Snapshot is a point-in-time copy of the registry's counters and failed
// URLs. Failed URLs are sorted so downstream output is stable.
type Snapshot struct {
	PagesCrawled       int64
	DocumentsFound     int64
	DocumentsProcessed int64
	Errors             int64
	VisitedPages       int
	FailedURLs         []string
}

// Snapshot captures the current counters and failed set.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	failed := make([]string, 0, len(s.failed))
	for url := range s.failed {
		failed = append(failed, url)
	}
	visited := len(s.visited)
	s.mu.Unlock()
	sort.Strings(failed)

	return Snapshot{
		PagesCrawled:       s.pagesCrawled.Load(),
		DocumentsFound:     s.documentsFound.Load(),
		DocumentsProcessed: s.documentsProcessed.Load(),
		Errors:             s.errors.Load(),
		VisitedPages:       visited,
		FailedURLs:         failed,
	}
}
