package types

import (
	"net/http"
	"time"
)

// StopBasis selects the criterion that ends a crawl
type StopBasis string

const (
	StopByTime  StopBasis = "time"
	StopByCount StopBasis = "count"
)

// FetchResult is what a fetcher hands back for a single URL
type FetchResult struct {
	StatusCode int
	Header     http.Header
	FinalURL   string
	Body       []byte
}

// Content is the extraction output for one HTML document
type Content struct {
	Title    string
	BodyText string
	Links    []string
}

// PageRecord contains information about a crawled page
type PageRecord struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	BodyText   string    `json:"body_text"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// CrawlStats contains crawl statistics
type CrawlStats struct {
	SeedURL      string
	VisitedCount int
	SampleURLs   []string

	Fetched      int64
	FetchErrors  int64
	Saved        int64
	SaveErrors   int64
	BytesFetched int64

	Elapsed    time.Duration
	StopReason string
}
