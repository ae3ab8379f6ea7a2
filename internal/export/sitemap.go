package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// SitemapConfig holds sitemap options
type SitemapConfig struct {
	IncludeLastmod    bool
	IncludeChangefreq bool
	DefaultPriority   float64
}

// DefaultSitemapConfig returns the sitemap defaults
func DefaultSitemapConfig() SitemapConfig {
	return SitemapConfig{
		IncludeLastmod:    true,
		IncludeChangefreq: true,
		DefaultPriority:   0.5,
	}
}

// URLSet represents the XML sitemap structure
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL represents a single URL in the sitemap
type URL struct {
	Loc        string  `xml:"loc"`
	Lastmod    string  `xml:"lastmod,omitempty"`
	Changefreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// WriteSitemap writes a sitemap of the successfully fetched pages.
// A URL stored by several crawls appears once, with its latest fetch time.
func WriteSitemap(w io.Writer, records []types.PageRecord, config SitemapConfig) (int, error) {
	urlSet := URLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]URL, 0),
	}

	index := make(map[string]int)
	latest := make(map[string]time.Time)
	for _, record := range records {
		// Only include successfully crawled pages
		if record.StatusCode != http.StatusOK {
			continue
		}

		u := URL{
			Loc:      record.URL,
			Priority: config.DefaultPriority,
		}
		if config.IncludeLastmod && !record.FetchedAt.IsZero() {
			u.Lastmod = record.FetchedAt.UTC().Format(time.RFC3339)
		}
		if config.IncludeChangefreq {
			u.Changefreq = "weekly"
		}

		if i, ok := index[record.URL]; ok {
			if record.FetchedAt.After(latest[record.URL]) {
				urlSet.URLs[i] = u
				latest[record.URL] = record.FetchedAt
			}
			continue
		}
		index[record.URL] = len(urlSet.URLs)
		latest[record.URL] = record.FetchedAt
		urlSet.URLs = append(urlSet.URLs, u)
	}

	output, err := xml.MarshalIndent(urlSet, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal XML: %w", err)
	}

	if _, err := io.WriteString(w, xml.Header+string(output)+"\n"); err != nil {
		return 0, fmt.Errorf("failed to write sitemap: %w", err)
	}

	return len(urlSet.URLs), nil
}
