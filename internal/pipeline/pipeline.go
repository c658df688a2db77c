// Package pipeline downloads discovered documents and dispatches them to
// blob storage and the processing queue.
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/atlasingest/document-crawler/internal/queue"
	"github.com/atlasingest/document-crawler/internal/storage"
	"github.com/atlasingest/document-crawler/pkg/logger"
)

// Registry is the slice of run state the pipeline needs: document-level
// dedup and outcome counters.
type Registry interface {
	TryReserveDocument(url string) bool
	AddDocumentProcessed()
	AddError()
}

// Config holds pipeline settings for one run.
type Config struct {
	CrawlerName       string
	UserAgent         string
	FetchTimeout      time.Duration
	RequestsPerSecond int
}

// Pipeline fetches document URLs and hands the bytes to the configured
// destinations. Store and publisher are both optional; a nil collaborator
// skips that dispatch leg.
type Pipeline struct {
	cfg      Config
	registry Registry
	store    storage.ObjectStorage
	pub      queue.Publisher
	client   *http.Client
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	log      *logger.Logger
}

// New creates a pipeline. sem is the run's shared I/O concurrency budget;
// nil disables the gate.
func New(cfg Config, registry Registry, store storage.ObjectStorage, pub queue.Publisher, sem *semaphore.Weighted, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}

	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		store:    store,
		pub:      pub,
		client:   &http.Client{Timeout: cfg.FetchTimeout},
		limiter:  limiter,
		sem:      sem,
		log:      log.WithComponent("pipeline"),
	}
}

// Process downloads one document URL and dispatches it. A URL is handled
// at most once per run; later calls for the same URL return immediately.
// All failures are absorbed here and surface through the registry counters.
func (p *Pipeline) Process(ctx context.Context, rawURL string) {
	if !p.registry.TryReserveDocument(rawURL) {
		return
	}

	p.log.Info("processing document", "url", rawURL)

	data, contentType, ok := p.fetch(ctx, rawURL)
	if !ok {
		return
	}

	key := objectKey(p.cfg.CrawlerName, rawURL)

	if p.store != nil {
		metadata := map[string]string{
			"source-url":       rawURL,
			"crawler-name":     p.cfg.CrawlerName,
			"upload-timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if _, err := p.store.UploadBytes(ctx, data, key, contentType, metadata); err != nil {
			p.registry.AddError()
			p.log.WithError(err).Error("error storing document", "url", rawURL, "key", key)
			return
		}
	}

	if p.pub != nil {
		event := queue.NewDocumentQueuedMessage(key, rawURL, contentType, p.cfg.CrawlerName, int64(len(data)))
		if err := p.pub.PublishDocumentQueued(ctx, event); err != nil {
			p.registry.AddError()
			p.log.WithError(err).Error("error queueing document", "url", rawURL, "key", key)
			return
		}
	}

	p.registry.AddDocumentProcessed()
	p.log.Info("document processed", "url", rawURL, "key", key, "size", len(data))
}

// fetch downloads the document body under the rate limit and the shared
// concurrency permit. A transport failure counts as an error; a non-200
// status is a soft miss and only logged.
func (p *Pipeline) fetch(ctx context.Context, rawURL string) (data []byte, contentType string, ok bool) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, "", false
		}
	}
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, "", false
		}
		defer p.sem.Release(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.registry.AddError()
		p.log.WithError(err).Error("error building document request", "url", rawURL)
		return nil, "", false
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.registry.AddError()
		p.log.WithError(err).Error("error downloading document", "url", rawURL)
		return nil, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("document fetch returned non-200", "url", rawURL, "status", resp.StatusCode)
		return nil, "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.registry.AddError()
		p.log.WithError(err).Error("error reading document body", "url", rawURL)
		return nil, "", false
	}

	return body, resp.Header.Get("Content-Type"), true
}

// objectKey derives the storage key for a document URL. The URL hash keeps
// keys stable across runs so re-crawls overwrite rather than duplicate.
func objectKey(crawlerName, rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return fmt.Sprintf("documents/%s/%s", crawlerName, hex.EncodeToString(sum[:]))
}
