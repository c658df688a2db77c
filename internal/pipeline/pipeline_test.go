package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasingest/document-crawler/internal/queue"
)

// fakeRegistry implements Registry with simple counters.
type fakeRegistry struct {
	mu        sync.Mutex
	reserved  map[string]struct{}
	processed int
	errs      int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{reserved: make(map[string]struct{})}
}

func (f *fakeRegistry) TryReserveDocument(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reserved[url]; ok {
		return false
	}
	f.reserved[url] = struct{}{}
	return true
}

func (f *fakeRegistry) AddDocumentProcessed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
}

func (f *fakeRegistry) AddError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs++
}

// fakeStore implements storage.ObjectStorage in memory.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (f *fakeStore) UploadBytes(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	f.objects[key] = data
	f.metadata[key] = metadata
	return key, nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }

// fakePublisher implements queue.Publisher.
type fakePublisher struct {
	mu       sync.Mutex
	events   []queue.DocumentQueuedMessage
	failWith error
}

func (f *fakePublisher) PublishDocumentQueued(ctx context.Context, event queue.DocumentQueuedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.events = append(f.events, event)
	return nil
}

func testPipelineConfig() Config {
	return Config{
		CrawlerName:       "test-crawler",
		UserAgent:         "DocumentCrawler/1.0",
		RequestsPerSecond: 100,
	}
}

func TestProcessSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DocumentCrawler/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 test"))
	}))
	defer srv.Close()

	registry := newFakeRegistry()
	store := newFakeStore()
	pub := &fakePublisher{}
	p := New(testPipelineConfig(), registry, store, pub, nil, nil)

	docURL := srv.URL + "/report.pdf"
	p.Process(context.Background(), docURL)

	assert.Equal(t, 1, registry.processed)
	assert.Equal(t, 0, registry.errs)

	key := objectKey("test-crawler", docURL)
	require.Contains(t, store.objects, key)
	assert.Equal(t, []byte("%PDF-1.4 test"), store.objects[key])
	assert.Equal(t, docURL, store.metadata[key]["source-url"])
	assert.Equal(t, "test-crawler", store.metadata[key]["crawler-name"])

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, key, event.DocumentKey)
	assert.Equal(t, docURL, event.SourceURL)
	assert.Equal(t, "application/pdf", event.ContentType)
	assert.Equal(t, int64(len("%PDF-1.4 test")), event.Size)
	assert.NotEmpty(t, event.EventID)
}

func TestProcessDuplicateHandledOnce(t *testing.T) {
	var requests int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		_, _ = w.Write([]byte("doc"))
	}))
	defer srv.Close()

	registry := newFakeRegistry()
	p := New(testPipelineConfig(), registry, newFakeStore(), &fakePublisher{}, nil, nil)

	docURL := srv.URL + "/a.pdf"
	p.Process(context.Background(), docURL)
	p.Process(context.Background(), docURL)

	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, registry.processed)
}

func TestProcessNotFoundIsSoftMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	registry := newFakeRegistry()
	store := newFakeStore()
	pub := &fakePublisher{}
	p := New(testPipelineConfig(), registry, store, pub, nil, nil)

	p.Process(context.Background(), srv.URL+"/missing.pdf")

	assert.Equal(t, 0, registry.processed)
	assert.Equal(t, 0, registry.errs)
	assert.Empty(t, store.objects)
	assert.Empty(t, pub.events)
}

func TestProcessTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse the connection

	registry := newFakeRegistry()
	p := New(testPipelineConfig(), registry, newFakeStore(), &fakePublisher{}, nil, nil)

	p.Process(context.Background(), srv.URL+"/a.pdf")

	assert.Equal(t, 0, registry.processed)
	assert.Equal(t, 1, registry.errs)
}

func TestProcessStorageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("doc"))
	}))
	defer srv.Close()

	registry := newFakeRegistry()
	store := newFakeStore()
	store.failWith = errors.New("bucket unavailable")
	pub := &fakePublisher{}
	p := New(testPipelineConfig(), registry, store, pub, nil, nil)

	p.Process(context.Background(), srv.URL+"/a.pdf")

	assert.Equal(t, 0, registry.processed)
	assert.Equal(t, 1, registry.errs)
	assert.Empty(t, pub.events)
}

func TestProcessQueueFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("doc"))
	}))
	defer srv.Close()

	registry := newFakeRegistry()
	store := newFakeStore()
	pub := &fakePublisher{failWith: errors.New("nats: connection closed")}
	p := New(testPipelineConfig(), registry, store, pub, nil, nil)

	p.Process(context.Background(), srv.URL+"/a.pdf")

	// Stored but not queued: not counted as processed.
	assert.Len(t, store.objects, 1)
	assert.Equal(t, 0, registry.processed)
	assert.Equal(t, 1, registry.errs)
}

func TestProcessNilCollaborators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("doc"))
	}))
	defer srv.Close()

	registry := newFakeRegistry()
	p := New(testPipelineConfig(), registry, nil, nil, nil, nil)

	p.Process(context.Background(), srv.URL+"/a.pdf")

	assert.Equal(t, 1, registry.processed)
	assert.Equal(t, 0, registry.errs)
}

func TestObjectKeyStable(t *testing.T) {
	k1 := objectKey("crawler-a", "https://example.com/report.pdf")
	k2 := objectKey("crawler-a", "https://example.com/report.pdf")
	k3 := objectKey("crawler-a", "https://example.com/other.pdf")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Regexp(t, `^documents/crawler-a/[0-9a-f]{32}$`, k1)
}
