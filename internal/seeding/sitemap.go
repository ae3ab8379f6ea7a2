// Package seeding discovers extra starting URLs for a crawl from the
// site's own sitemaps.
package seeding

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// Fetcher retrieves a single URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*types.FetchResult, error)
}

// Default limits for sitemap discovery
const (
	DefaultMaxURLs     = 10000
	DefaultMaxSitemaps = 50
)

// wellKnownSitemaps are tried on every origin, in addition to robots.txt entries
var wellKnownSitemaps = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml"}

// SitemapSource reads page URLs from sitemap.xml files, following
// sitemap indexes and the Sitemap lines of robots.txt.
type SitemapSource struct {
	fetcher     Fetcher
	logger      *slog.Logger
	maxURLs     int
	maxSitemaps int
}

// NewSitemapSource creates a source that fetches through f
func NewSitemapSource(f Fetcher, logger *slog.Logger) *SitemapSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapSource{
		fetcher:     f,
		logger:      logger,
		maxURLs:     DefaultMaxURLs,
		maxSitemaps: DefaultMaxSitemaps,
	}
}

// WithLimits caps the number of URLs returned and sitemaps fetched
func (s *SitemapSource) WithLimits(maxURLs, maxSitemaps int) *SitemapSource {
	if maxURLs > 0 {
		s.maxURLs = maxURLs
	}
	if maxSitemaps > 0 {
		s.maxSitemaps = maxSitemaps
	}
	return s
}

type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Discover returns the page URLs listed in the seed origin's sitemaps.
// A site without sitemaps yields an empty result, not an error. Scope
// filtering is left to the caller.
func (s *SitemapSource) Discover(ctx context.Context, seed string) ([]string, error) {
	parsed, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	base := parsed.Scheme + "://" + parsed.Host

	queue := make([]string, 0, len(wellKnownSitemaps))
	queue = append(queue, s.robotsSitemaps(ctx, base)...)
	for _, path := range wellKnownSitemaps {
		queue = append(queue, base+path)
	}

	seenSitemaps := make(map[string]bool)
	seenURLs := make(map[string]bool)
	var urls []string

	for len(queue) > 0 && len(seenSitemaps) < s.maxSitemaps && len(urls) < s.maxURLs {
		if err := ctx.Err(); err != nil {
			return urls, err
		}

		sitemapURL := queue[0]
		queue = queue[1:]
		if seenSitemaps[sitemapURL] {
			continue
		}
		seenSitemaps[sitemapURL] = true

		pages, nested, err := s.fetchSitemap(ctx, sitemapURL)
		if err != nil {
			s.logger.Debug("sitemap unavailable", "url", sitemapURL, "error", err)
			continue
		}
		queue = append(queue, nested...)

		for _, page := range pages {
			if len(urls) >= s.maxURLs {
				break
			}
			if !seenURLs[page] {
				seenURLs[page] = true
				urls = append(urls, page)
			}
		}
	}

	return urls, nil
}

func (s *SitemapSource) robotsSitemaps(ctx context.Context, base string) []string {
	res, err := s.fetcher.Fetch(ctx, base+"/robots.txt")
	if err != nil || res.StatusCode != http.StatusOK {
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		return nil
	}
	return robots.Sitemaps
}

// fetchSitemap returns the page locations of a urlset, or the nested
// sitemap locations of a sitemap index
func (s *SitemapSource) fetchSitemap(ctx context.Context, sitemapURL string) ([]string, []string, error) {
	res, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("sitemap returned status %d", res.StatusCode)
	}

	body, err := decompress(res.Body)
	if err != nil {
		return nil, nil, err
	}

	root, err := rootElement(body)
	if err != nil {
		return nil, nil, err
	}

	switch root {
	case "sitemapindex":
		var index sitemapIndex
		if err := xml.Unmarshal(body, &index); err != nil {
			return nil, nil, fmt.Errorf("parse sitemap index: %w", err)
		}
		nested := make([]string, 0, len(index.Sitemaps))
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				nested = append(nested, loc)
			}
		}
		return nil, nested, nil
	case "urlset":
		var set urlSet
		if err := xml.Unmarshal(body, &set); err != nil {
			return nil, nil, fmt.Errorf("parse sitemap: %w", err)
		}
		pages := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
		return pages, nil, nil
	default:
		return nil, nil, fmt.Errorf("not a sitemap: root element <%s>", root)
	}
}

// decompress gunzips sitemap.xml.gz files served without Content-Encoding
func decompress(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gunzip sitemap: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("parse sitemap: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
