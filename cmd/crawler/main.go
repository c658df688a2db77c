// Package main is the entry point for the document crawler CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/atlasingest/document-crawler/internal/config"
	"github.com/atlasingest/document-crawler/internal/crawler"
	"github.com/atlasingest/document-crawler/internal/metrics"
	"github.com/atlasingest/document-crawler/internal/pipeline"
	"github.com/atlasingest/document-crawler/internal/queue"
	"github.com/atlasingest/document-crawler/internal/render"
	"github.com/atlasingest/document-crawler/internal/report"
	"github.com/atlasingest/document-crawler/internal/storage"
	"github.com/atlasingest/document-crawler/pkg/logger"
	"github.com/atlasingest/document-crawler/pkg/shutdown"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// CrawlOptions holds options for the crawl command.
type CrawlOptions struct {
	ConfigPath string
	LogLevel   string
	DryRun     bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:     "crawler",
		Short:   "Document discovery crawler",
		Long:    "Crawls configured sites, discovers document links, and dispatches them to storage and the processing queue.",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	rootCmd.AddCommand(newCrawlCmd())

	return rootCmd.Execute()
}

// newCrawlCmd creates the crawl subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &CrawlOptions{}

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a crawl from a configuration file",
		Example: `  # Run with a config file
  crawler crawl --config=configs/docs-site.yaml

  # Discover only, skip storage and queue dispatch
  crawler crawl --config=configs/docs-site.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to configuration file")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "discover documents without storing or queueing them")

	return cmd
}

func runCrawl(ctx context.Context, opts *CrawlOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	log := logger.New(cfg.Log)
	log.SetDefault()

	runID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.CrawlerNameKey, cfg.Crawl.Name)
	log = log.WithContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sd := shutdown.New(log.Logger, 30*time.Second)
	defer sd.Shutdown()

	// External collaborators. A failure to reach any configured
	// collaborator aborts the run before traversal begins.
	var store storage.ObjectStorage
	if cfg.Storage.Enabled() && !opts.DryRun {
		minioStore, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			BucketName:      cfg.Storage.BucketName,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
		})
		if err != nil {
			return fmt.Errorf("storage setup failed: %w", err)
		}
		if err := minioStore.InitBucket(ctx); err != nil {
			return fmt.Errorf("storage setup failed: %w", err)
		}
		store = minioStore
		log.Info("storage ready", "bucket", cfg.Storage.BucketName)
	}

	var (
		pub     queue.Publisher
		emitter metrics.Emitter = metrics.NewLogEmitter(log)
	)
	if cfg.Queue.Enabled() && !opts.DryRun {
		natsCfg := queue.DefaultNATSConfig()
		natsCfg.URL = cfg.Queue.URL
		natsCfg.ClientName = cfg.Queue.ClientName

		nc, err := queue.NewNATSClient(natsCfg, log)
		if err != nil {
			return fmt.Errorf("queue setup failed: %w", err)
		}
		sd.Register("nats", func(ctx context.Context) error {
			if err := nc.Drain(); err != nil {
				return err
			}
			return nc.Close()
		})
		if err := nc.SetupStreams(ctx); err != nil {
			return fmt.Errorf("queue setup failed: %w", err)
		}
		pub = nc
		emitter = metrics.NewNATSEmitter(nc.Conn(), log)
	}

	renderer := render.NewChromeRenderer(render.ChromeConfig{
		UserAgent:         cfg.Renderer.UserAgent,
		NavigationTimeout: cfg.Renderer.NavigationTimeout.Duration,
		NetworkIdleWindow: cfg.Renderer.NetworkIdleWindow.Duration,
		PageLinkLimit:     cfg.Renderer.PageLinkLimit,
		Headless:          *cfg.Renderer.Headless,
	}, log)
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("renderer setup failed: %w", err)
	}
	sd.Register("renderer", func(ctx context.Context) error {
		renderer.Stop()
		return nil
	})

	// One I/O concurrency budget for the whole run, shared between page
	// navigations and document downloads.
	sem := semaphore.NewWeighted(int64(cfg.Crawl.MaxConcurrency))

	state := crawler.NewState(cfg.Crawl.MaxPages)
	pipe := pipeline.New(pipeline.Config{
		CrawlerName:       cfg.Crawl.Name,
		UserAgent:         cfg.Fetch.UserAgent,
		FetchTimeout:      cfg.Fetch.Timeout.Duration,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	}, state, store, pub, sem, log)

	c := crawler.New(crawler.Config{
		Name:               cfg.Crawl.Name,
		StartURLs:          cfg.Crawl.StartURLs,
		AllowedDomains:     cfg.Crawl.AllowedDomains,
		MaxDepth:           cfg.Crawl.MaxDepth,
		MaxPages:           cfg.Crawl.MaxPages,
		Delay:              cfg.Crawl.DelayBetweenRequests.Duration,
		FanOut:             cfg.Crawl.ConcurrentRequests,
		MaxConcurrency:     int64(cfg.Crawl.MaxConcurrency),
		DocumentExtensions: cfg.Crawl.DocumentExtensions,
		ExcludePatterns:    cfg.Crawl.ExcludePatterns,
	}, renderer, pipe, state, sem, log)

	progressDone := make(chan struct{})
	go trackProgress(ctx, state, cfg.Crawl.MaxPages, progressDone)

	summary, runErr := c.Run(ctx)
	close(progressDone)

	emitRunMetrics(ctx, emitter, cfg.Metrics.Namespace, summary, log)

	out, err := summary.JSON()
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	fmt.Println(string(out))

	if runErr != nil {
		return fmt.Errorf("crawl interrupted: %w", runErr)
	}
	return nil
}

// trackProgress renders a progress bar against the page budget while the
// crawl runs.
func trackProgress(ctx context.Context, state *crawler.State, maxPages int, done <-chan struct{}) {
	bar := progressbar.NewOptions(maxPages,
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			_ = bar.Finish()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = bar.Set(state.VisitedCount())
		}
	}
}

// emitRunMetrics publishes run-level measurements. Failures are logged and
// do not affect the run outcome.
func emitRunMetrics(ctx context.Context, emitter metrics.Emitter, namespace string, s *report.Summary, log *logger.Logger) {
	dims := map[string]string{"crawler_name": s.CrawlerName}
	data := []metrics.Datum{
		{Name: "PagesCrawled", Value: float64(s.PagesCrawled), Unit: "Count", Dimensions: dims},
		{Name: "DocumentsFound", Value: float64(s.DocumentsFound), Unit: "Count", Dimensions: dims},
		{Name: "DocumentsProcessed", Value: float64(s.DocumentsProcessed), Unit: "Count", Dimensions: dims},
		{Name: "ErrorsCount", Value: float64(s.ErrorsCount), Unit: "Count", Dimensions: dims},
		{Name: "CrawlDuration", Value: s.RuntimeSeconds, Unit: "Seconds", Dimensions: dims},
	}
	if err := emitter.Emit(ctx, namespace, data); err != nil {
		log.WithError(err).Warn("failed to emit metrics")
	}
}
