// Package renderer re-fetches JavaScript-heavy pages through headless Chrome.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// Options configures the Chrome renderer
type Options struct {
	Timeout         time.Duration
	UserAgent       string
	DisableHeadless bool

	// Concurrency caps open tabs. Defaults to 2.
	Concurrency int

	// CaptureDelay is how long scripts get to run after load
	CaptureDelay time.Duration
}

// Chrome renders pages in tabs of one long-lived browser
type Chrome struct {
	opts   Options
	logger *slog.Logger
	tabs   *semaphore.Weighted

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChrome launches the browser. It fails if no Chrome binary is available.
func NewChrome(opts Options, logger *slog.Logger) (*Chrome, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.CaptureDelay <= 0 {
		opts.CaptureDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// first Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &Chrome{
		opts:          opts,
		logger:        logger,
		tabs:          semaphore.NewWeighted(int64(opts.Concurrency)),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Render loads url in a new tab and returns the DOM after scripts ran
func (c *Chrome) Render(ctx context.Context, url string) (*types.FetchResult, error) {
	if err := c.tabs.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.tabs.Release(1)

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, fmt.Errorf("chromedp navigate: %w", err)
	}

	var html, finalURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(c.opts.CaptureDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("chromedp capture: %w", err)
	}

	result := &types.FetchResult{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		FinalURL:   finalURL,
		Body:       []byte(html),
	}
	if resp != nil {
		result.StatusCode = int(resp.Status)
		for k, v := range resp.Headers {
			result.Header.Set(k, fmt.Sprint(v))
		}
	}
	if result.FinalURL == "" {
		result.FinalURL = url
	}

	c.logger.Debug("render complete",
		"url", url,
		"status", result.StatusCode,
		"html_bytes", len(html),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Close shuts the browser down
func (c *Chrome) Close() error {
	var err error
	if c.browserCtx != nil {
		err = chromedp.Cancel(c.browserCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}
	c.browserCancel()
	c.allocCancel()
	return err
}
