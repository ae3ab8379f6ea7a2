package renderer

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// PageFetcher is the plain fetch path the renderer wraps
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*types.FetchResult, error)
}

// Renderer executes JavaScript and returns the rendered DOM
type Renderer interface {
	Render(ctx context.Context, url string) (*types.FetchResult, error)
}

// Fetcher fetches over HTTP first and re-renders pages that look like a
// script shell. A failed render falls back to the HTTP result.
type Fetcher struct {
	base     PageFetcher
	renderer Renderer
	logger   *slog.Logger
}

// NewFetcher wraps base with renderer
func NewFetcher(base PageFetcher, renderer Renderer, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{base: base, renderer: renderer, logger: logger}
}

// Fetch implements the crawler's fetcher
func (f *Fetcher) Fetch(ctx context.Context, url string) (*types.FetchResult, error) {
	res, err := f.base.Fetch(ctx, url)
	if err != nil || res.StatusCode != http.StatusOK {
		return res, err
	}
	if ct := strings.ToLower(res.Header.Get("Content-Type")); ct != "" && !strings.Contains(ct, "html") {
		return res, nil
	}
	if !ShouldRender(string(res.Body)) {
		return res, nil
	}

	rendered, err := f.renderer.Render(ctx, url)
	if err != nil {
		f.logger.Warn("renderer failed, using HTTP response", "url", url, "error", err)
		return res, nil
	}
	return rendered, nil
}

var jsIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	"<noscript>you need to enable javascript",
	"javascript is required",
	"please enable javascript",
	"__next_data__",
	"ng-app",
	"v-app",
	"data-reactroot",
}

// ShouldRender determines if a page needs JS rendering: either it is
// nearly empty or it carries a client-side framework marker.
func ShouldRender(htmlContent string) bool {
	if len(htmlContent) < 500 {
		return true
	}

	lowerContent := strings.ToLower(htmlContent)
	for _, indicator := range jsIndicators {
		if strings.Contains(lowerContent, indicator) {
			return true
		}
	}
	return false
}
