package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/BenjaminSRussell/origincrawl/internal/config"
	customhttp "github.com/BenjaminSRussell/origincrawl/internal/http"
	"github.com/BenjaminSRussell/origincrawl/internal/parser"
	"github.com/BenjaminSRussell/origincrawl/internal/renderer"
	"github.com/BenjaminSRussell/origincrawl/internal/seeding"
	"github.com/BenjaminSRussell/origincrawl/internal/storage"
)

// NewFromConfig wires a crawler from configuration. The seed is checked
// before any store or browser is opened. Call Close on the result.
func NewFromConfig(ctx context.Context, cfg config.Config, stdout io.Writer, logger *slog.Logger) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := NewOrigin(cfg.Seed); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpFetcher, err := customhttp.NewFetcher(customhttp.Options{
		ConnectTimeout:   cfg.Fetch.ConnectTimeout.Duration,
		ReadTimeout:      cfg.Fetch.ReadTimeout.Duration,
		UserAgent:        cfg.Fetch.UserAgent,
		MaxBodyBytes:     cfg.Fetch.MaxBodyBytes,
		TLSProfile:       cfg.Fetch.TLSProfile,
		RotateHeaders:    cfg.Fetch.RotateHeaders,
		Proxies:          cfg.Fetch.Proxies,
		ProxyMaxFailures: cfg.Fetch.ProxyMaxFailures,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	visited, err := newVisitedSet(cfg.Visited)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	store, err := storage.Open(ctx, cfg.Store, stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	closers = append(closers, store.Close)
	if tagged, ok := store.(interface{ CrawlID() string }); ok {
		logger.Info("storing pages", "store", cfg.Store, "crawl_id", tagged.CrawlID())
	}

	var fetcher Fetcher = httpFetcher
	if cfg.Render.Enabled {
		chrome, err := renderer.NewChrome(renderer.Options{
			Timeout:         cfg.Render.Timeout.Duration,
			UserAgent:       cfg.Fetch.UserAgent,
			DisableHeadless: cfg.Render.DisableHeadless,
		}, logger)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, chrome.Close)
		fetcher = renderer.NewFetcher(httpFetcher, chrome, logger)
	}

	opts := []Option{
		WithFetcher(fetcher),
		WithProcessor(parser.New()),
		WithStore(store),
		WithLogger(logger),
		WithVisitedSet(visited),
		WithStop(cfg.Stop.Basis, cfg.Stop.Duration.Duration, cfg.Stop.MaxURLs),
		WithWorkers(cfg.Workers),
		WithPollInterval(cfg.Engine.PollInterval.Duration),
		WithDrainTimeout(cfg.Engine.DrainTimeout.Duration),
		WithProgressInterval(cfg.Engine.ProgressInterval.Duration),
		WithSampleSize(cfg.Engine.SampleSize),
	}
	if cfg.Seeding.Sitemap {
		src := seeding.NewSitemapSource(httpFetcher, logger).WithLimits(cfg.Seeding.MaxURLs, 0)
		opts = append(opts, WithSeedSource(src))
	}
	for _, closer := range closers {
		opts = append(opts, WithCloser(closer))
	}

	c, err := New(cfg.Seed, opts...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return c, nil
}

func newVisitedSet(cfg config.VisitedConfig) (VisitedSet, error) {
	switch cfg.Mode {
	case "bloom":
		set, err := NewBloomSet(cfg.Capacity, cfg.FalsePositiveRate)
		if err != nil {
			return nil, err
		}
		return set, nil
	case "exact", "":
		return NewExactSet(), nil
	default:
		return nil, fmt.Errorf("unknown visited mode %q", cfg.Mode)
	}
}
