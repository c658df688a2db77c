package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/atlasingest/document-crawler/pkg/logger"
)

// maxIdleWait caps how long a navigation waits for the network to go
// quiet. Pages with permanent background polling would otherwise never
// settle; after this long the DOM is used as-is.
const maxIdleWait = 10 * time.Second

// ChromeConfig holds headless browser configuration.
type ChromeConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
	NetworkIdleWindow time.Duration
	PageLinkLimit     int
	Headless          bool
}

// DefaultChromeConfig returns default renderer configuration.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		UserAgent:         "DocumentCrawler/1.0 (+https://atlasingest.io/bot)",
		NavigationTimeout: 30 * time.Second,
		NetworkIdleWindow: 500 * time.Millisecond,
		PageLinkLimit:     50,
		Headless:          true,
	}
}

// ChromeRenderer renders pages with a single shared headless Chrome
// process. Each Navigate call opens its own tab, so concurrent callers
// never share a navigation.
type ChromeRenderer struct {
	cfg ChromeConfig
	log *logger.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeRenderer creates a renderer. Start must be called before
// Navigate.
func NewChromeRenderer(cfg ChromeConfig, log *logger.Logger) *ChromeRenderer {
	if log == nil {
		log = logger.Default()
	}
	return &ChromeRenderer{
		cfg: cfg,
		log: log.WithComponent("renderer"),
	}
}

// Start launches the browser process. A failure here aborts the whole run
// before any traversal begins.
func (r *ChromeRenderer) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the browser to launch now, so setup
	// failures surface here instead of on the first visit.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	r.allocCancel = allocCancel
	r.browserCtx = browserCtx
	r.browserCancel = browserCancel

	r.log.Info("browser launched", "headless", r.cfg.Headless)
	return nil
}

// Stop closes the browser process.
func (r *ChromeRenderer) Stop() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.log.Info("browser stopped")
}

// Navigate opens a tab, waits for the network to go idle, and extracts the
// page's anchor and embedded links.
func (r *ChromeRenderer) Navigate(ctx context.Context, rawURL string) (*RenderedPage, error) {
	if r.browserCtx == nil {
		return nil, fmt.Errorf("renderer not started")
	}

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	defer tabCancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer timeoutCancel()

	// The tab descends from the browser context, not the caller's, so
	// propagate caller cancellation by hand.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-done:
		}
	}()

	watcher := newNetworkWatcher()
	chromedp.ListenTarget(tabCtx, watcher.handle)

	var (
		finalURL string
		anchors  []string
		embedded []string
	)

	anchorJS := fmt.Sprintf(`
		(() => {
			const links = Array.from(document.querySelectorAll('a[href]'));
			return links
				.map(a => a.href)
				.filter(h => h && !h.startsWith('mailto:') && !h.startsWith('tel:'))
				.slice(0, %d);
		})()
	`, r.cfg.PageLinkLimit)

	embeddedJS := `
		(() => {
			const els = Array.from(document.querySelectorAll('iframe[src], object[data], embed[src]'));
			return els.map(el => el.src || el.data).filter(Boolean);
		})()
	`

	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(rawURL),
		waitNetworkIdle(watcher, r.cfg.NetworkIdleWindow),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(anchorJS, &anchors),
		chromedp.Evaluate(embeddedJS, &embedded),
	)
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	if finalURL == "" {
		finalURL = rawURL
	}

	page := &RenderedPage{
		URL:           finalURL,
		AnchorLinks:   ResolveLinks(finalURL, anchors),
		EmbeddedLinks: ResolveLinks(finalURL, embedded),
	}

	r.log.Debug("page rendered",
		"url", finalURL,
		"anchor_links", len(page.AnchorLinks),
		"embedded_links", len(page.EmbeddedLinks),
	)
	return page, nil
}

// networkWatcher tracks in-flight network requests for a tab so a
// navigation can wait for the page to go quiet, mirroring Playwright's
// networkidle wait condition.
type networkWatcher struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastSeen time.Time
}

func newNetworkWatcher() *networkWatcher {
	return &networkWatcher{
		inflight: make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
	}
}

func (w *networkWatcher) handle(ev interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		w.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(w.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(w.inflight, e.RequestID)
	case *network.EventRequestServedFromCache:
		delete(w.inflight, e.RequestID)
	default:
		return
	}
	w.lastSeen = time.Now()
}

func (w *networkWatcher) snapshot() (int, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight), w.lastSeen
}

// waitNetworkIdle blocks until no request has been in flight for the idle
// window, or until maxIdleWait elapses.
func waitNetworkIdle(w *networkWatcher, window time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(maxIdleWait)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			inflight, lastSeen := w.snapshot()
			if inflight == 0 && time.Since(lastSeen) >= window {
				return nil
			}
			if time.Now().After(deadline) {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
