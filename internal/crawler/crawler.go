// Package crawler implements the crawl scheduler: a recursive,
// depth-bounded, deduplicated traversal of a site's link graph that routes
// discovered documents into the processing pipeline.
package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/atlasingest/document-crawler/internal/policy"
	"github.com/atlasingest/document-crawler/internal/render"
	"github.com/atlasingest/document-crawler/internal/report"
	"github.com/atlasingest/document-crawler/pkg/logger"
)

// Config holds the traversal parameters for one run.
type Config struct {
	Name               string
	StartURLs          []string
	AllowedDomains     []string
	MaxDepth           int
	MaxPages           int
	Delay              time.Duration
	FanOut             int
	MaxConcurrency     int64
	DocumentExtensions []string
	ExcludePatterns    []string
}

// DocumentSink receives discovered document URLs. Processing failures are
// absorbed by the sink and surface only through the shared State counters.
type DocumentSink interface {
	Process(ctx context.Context, rawURL string)
}

// Crawler drives the traversal. One Crawler owns one State for the
// lifetime of a run.
type Crawler struct {
	cfg      Config
	renderer render.Renderer
	sink     DocumentSink
	state    *State
	sem      *semaphore.Weighted
	log      *logger.Logger
}

// New creates a crawler for a single run. sem is the run's global I/O
// concurrency budget; it is shared with the document pipeline so page
// navigations and document fetches draw from the same ceiling. A nil sem
// gets a private budget sized from cfg.MaxConcurrency.
func New(cfg Config, r render.Renderer, sink DocumentSink, state *State, sem *semaphore.Weighted, log *logger.Logger) *Crawler {
	if log == nil {
		log = logger.Default()
	}
	if sem == nil {
		maxConcurrency := cfg.MaxConcurrency
		if maxConcurrency <= 0 {
			maxConcurrency = 16
		}
		sem = semaphore.NewWeighted(maxConcurrency)
	}
	return &Crawler{
		cfg:      cfg,
		renderer: r,
		sink:     sink,
		state:    state,
		sem:      sem,
		log:      log.WithComponent("crawler"),
	}
}

// State returns the run's registry, for progress observation.
func (c *Crawler) State() *State {
	return c.state
}

// Run launches one root visit per start URL and blocks until the whole
// traversal, including all dispatched document work, has completed. The
// returned summary is always populated; the error is non-nil only when the
// context was cancelled mid-run.
func (c *Crawler) Run(ctx context.Context) (*report.Summary, error) {
	start := time.Now().UTC()
	c.log.Info("starting crawl",
		"crawler_name", c.cfg.Name,
		"start_urls", len(c.cfg.StartURLs),
		"max_depth", c.cfg.MaxDepth,
		"max_pages", c.cfg.MaxPages,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, startURL := range c.cfg.StartURLs {
		g.Go(func() error {
			c.visit(gctx, startURL, 0)
			return nil
		})
	}
	// Visits never return errors; they record failures locally.
	_ = g.Wait()

	end := time.Now().UTC()
	snap := c.state.Snapshot()
	summary := report.New(c.cfg.Name, start, end,
		snap.PagesCrawled,
		snap.DocumentsFound,
		snap.DocumentsProcessed,
		snap.Errors,
		snap.FailedURLs,
	)

	c.log.Info("crawl completed",
		"pages_crawled", summary.PagesCrawled,
		"documents_found", summary.DocumentsFound,
		"documents_processed", summary.DocumentsProcessed,
		"errors_count", summary.ErrorsCount,
		"runtime_seconds", summary.RuntimeSeconds,
	)
	return summary, ctx.Err()
}

// visit crawls a single URL at the given depth and recursively schedules
// its children. Every failure is contained here; nothing propagates to
// sibling visits.
func (c *Crawler) visit(ctx context.Context, rawURL string, depth int) {
	if ctx.Err() != nil {
		return
	}

	// Eligibility checks run before reservation. A rejected URL is not
	// memoized and may be reconsidered when reached via another path.
	if depth > c.cfg.MaxDepth {
		return
	}
	if c.cfg.MaxPages > 0 && c.state.VisitedCount() >= c.cfg.MaxPages {
		return
	}
	if policy.IsExcluded(rawURL, c.cfg.ExcludePatterns) {
		c.log.Debug("skipping excluded url", "url", rawURL)
		return
	}
	if !policy.IsAllowedDomain(rawURL, c.cfg.AllowedDomains) {
		c.log.Debug("skipping url outside allowed domains", "url", rawURL)
		return
	}

	// Sole admission gate. Whoever wins the reservation owns the URL for
	// the rest of the run, so cyclic graphs terminate.
	if !c.state.TryReserveVisit(rawURL) {
		return
	}

	c.log.Info("crawling url", "url", rawURL, "depth", depth)

	page, err := c.navigate(ctx, rawURL)
	if err != nil {
		c.state.RecordFailure(rawURL)
		c.state.AddError()
		c.log.WithError(err).Error("error crawling url", "url", rawURL, "depth", depth)
		return
	}
	c.state.AddPageCrawled()

	documents, pageLinks := classify(page, c.cfg.DocumentExtensions)
	c.state.AddDocumentsFound(len(documents))

	var wg sync.WaitGroup
	for _, docURL := range documents {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			c.sink.Process(ctx, u)
		}(docURL)
	}

	if depth < c.cfg.MaxDepth {
		children := pageLinks
		if c.cfg.FanOut > 0 && len(children) > c.cfg.FanOut {
			c.log.Debug("fan-out cap reached",
				"url", rawURL,
				"scheduled", c.cfg.FanOut,
				"dropped", len(children)-c.cfg.FanOut,
			)
			children = children[:c.cfg.FanOut]
		}
		for _, child := range children {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				c.visit(ctx, u, depth+1)
			}(child)
		}

		// Courtesy delay between a page's child batches. This throttles
		// batch initiation, not the total request rate.
		if c.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.Delay):
			}
		}
	}

	wg.Wait()
}

// navigate runs the renderer under the global concurrency permit. The
// permit is scoped to the I/O call only; holding it across the whole visit
// frame would deadlock the recursive spawn once permits run out.
func (c *Crawler) navigate(ctx context.Context, rawURL string) (*render.RenderedPage, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	return c.renderer.Navigate(ctx, rawURL)
}
