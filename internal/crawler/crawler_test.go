package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/origincrawl/internal/config"
	"github.com/BenjaminSRussell/origincrawl/internal/storage"
	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

const origin = "https://example.com"

// fakeSite serves pages from memory and counts fetches per URL
type fakeSite struct {
	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	errs   map[string]error
	delay  time.Duration

	// next generates a page for URLs not in pages
	next func(url string) (string, bool)

	calls map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:  make(map[string]string),
		status: make(map[string]int),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (s *fakeSite) Fetch(ctx context.Context, url string) (*types.FetchResult, error) {
	s.mu.Lock()
	s.calls[url]++
	body, ok := s.pages[url]
	status, hasStatus := s.status[url]
	err := s.errs[url]
	next := s.next
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok && next != nil {
		body, ok = next(url)
	}
	if !hasStatus {
		status = http.StatusOK
		if !ok {
			status = http.StatusNotFound
		}
	}

	return &types.FetchResult{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		FinalURL:   url,
		Body:       []byte(body),
	}, nil
}

func (s *fakeSite) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *fakeSite) fetchedURLs() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.calls))
	for k, v := range s.calls {
		out[k] = v
	}
	return out
}

// endless links every page to the next numbered page
func endless(url string) (string, bool) {
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(url, origin), "/p%d", &n); err != nil {
		n = 0
	}
	return fmt.Sprintf(`<title>P%d</title><a href="/p%d">next</a><a href="/p%d">skip</a>`, n, n+1, n+2), true
}

type memoryStore struct {
	mu      sync.Mutex
	records []types.PageRecord
	fail    bool
}

func (m *memoryStore) Save(_ context.Context, record types.PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStore) byURL() map[string]types.PageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.PageRecord)
	for _, r := range m.records {
		out[r.URL] = r
	}
	return out
}

func newTestCrawler(t *testing.T, site *fakeSite, opts ...Option) *Crawler {
	t.Helper()
	base := []Option{
		WithFetcher(site),
		WithLogger(discardLogger()),
		WithPollInterval(20 * time.Millisecond),
		WithDrainTimeout(2 * time.Second),
		WithProgressInterval(0),
	}
	c, err := New(origin+"/", append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsInvalidSeed(t *testing.T) {
	for _, seed := range []string{"", "not a url", "ftp://example.com/", "//example.com"} {
		_, err := New(seed)
		var scopeErr *ScopeError
		assert.True(t, errors.As(err, &scopeErr), "seed %q: %v", seed, err)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(origin, WithWorkers(0))
	assert.Error(t, err)

	_, err = New(origin, WithStop(types.StopByCount, 0, 0))
	assert.Error(t, err)
}

func TestCrawlExhaustsFrontier(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<title>Home</title><p>Welcome</p>
		<a href="/a">a</a><a href="/b#frag">b</a><a href="https://other.com/x">x</a>
		<a href="mailto:me@example.com">m</a><a href="/a">a again</a>`
	site.pages[origin+"/a"] = `<title>A</title><a href="/">home</a><a href="/b">b</a>`
	site.pages[origin+"/b"] = `<title>B</title><a href="/a">a</a><a href="` + origin + `/">home</a>`

	store := &memoryStore{}
	c := newTestCrawler(t, site, WithStore(store), WithWorkers(3))

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, reasonExhausted, stats.StopReason)
	assert.Equal(t, 3, stats.VisitedCount)
	assert.Equal(t, int64(3), stats.Fetched)
	assert.Equal(t, int64(3), stats.Saved)
	assert.Equal(t, StateStopped, c.State())

	for url, n := range site.fetchedURLs() {
		assert.Equal(t, 1, n, "fetched %s %d times", url, n)
		assert.True(t, strings.HasPrefix(url, origin+"/"), "out of scope fetch %s", url)
	}

	records := store.byURL()
	require.Contains(t, records, origin+"/")
	assert.Equal(t, "Home", records[origin+"/"].Title)
	assert.Equal(t, "Welcome", records[origin+"/"].BodyText)
	assert.Equal(t, http.StatusOK, records[origin+"/"].StatusCode)
	assert.False(t, records[origin+"/"].FetchedAt.IsZero())
}

func TestCrawlCountBoundIsExact(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			site := newFakeSite()
			site.next = endless

			c := newTestCrawler(t, site,
				WithWorkers(workers),
				WithStop(types.StopByCount, 0, 5),
			)

			stats, err := c.Crawl(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 5, stats.VisitedCount)
			assert.Contains(t, stats.StopReason, "count limit 5")
			assert.Len(t, site.fetchedURLs(), 5)
			assert.Len(t, stats.SampleURLs, 5)
			assert.Equal(t, origin+"/", stats.SampleURLs[0])
		})
	}
}

func TestCrawlTimeBoundStops(t *testing.T) {
	site := newFakeSite()
	site.next = endless
	site.delay = 5 * time.Millisecond

	c := newTestCrawler(t, site,
		WithWorkers(4),
		WithStop(types.StopByTime, 150*time.Millisecond, 0),
	)

	start := time.Now()
	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, stats.StopReason, "time limit")
	assert.Greater(t, stats.VisitedCount, 1)
}

func TestCrawlInterrupted(t *testing.T) {
	site := newFakeSite()
	site.next = endless
	site.delay = 5 * time.Millisecond

	c := newTestCrawler(t, site, WithStop(types.StopByTime, time.Minute, 0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(80*time.Millisecond, cancel)

	stats, err := c.Crawl(ctx)
	require.NoError(t, err)
	assert.Equal(t, reasonInterrupted, stats.StopReason)
	assert.Equal(t, StateStopped, c.State())
}

func TestCrawlIsolatesFetchFailures(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<a href="/bad">bad</a><a href="/down">down</a><a href="/good">good</a>`
	site.pages[origin+"/bad"] = `<a href="/never">never</a>`
	site.status[origin+"/bad"] = http.StatusInternalServerError
	site.errs[origin+"/down"] = errors.New("connection refused")
	site.pages[origin+"/good"] = `<title>Good</title>`

	visited := NewExactSet()
	store := &memoryStore{}
	c := newTestCrawler(t, site, WithStore(store), WithVisitedSet(visited))

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, reasonExhausted, stats.StopReason)
	assert.Equal(t, int64(2), stats.FetchErrors)
	assert.Equal(t, int64(2), stats.Saved)
	assert.Zero(t, site.callCount(origin+"/never"))

	// failed URLs stay marked
	assert.False(t, visited.TryMarkVisited(origin+"/bad"))
	assert.False(t, visited.TryMarkVisited(origin+"/down"))

	records := store.byURL()
	assert.NotContains(t, records, origin+"/bad")
	assert.Contains(t, records, origin+"/good")
}

func TestCrawlSkipsNonHTML(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<a href="/doc.pdf">pdf</a>`

	pdf := &contentTypeFetcher{base: site, url: origin + "/doc.pdf", contentType: "application/pdf"}
	store := &memoryStore{}
	c := newTestCrawler(t, site, WithFetcher(pdf), WithStore(store))

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VisitedCount)
	assert.Equal(t, int64(1), stats.Saved)
	assert.Zero(t, stats.FetchErrors)
}

type contentTypeFetcher struct {
	base        Fetcher
	url         string
	contentType string
}

func (f *contentTypeFetcher) Fetch(ctx context.Context, url string) (*types.FetchResult, error) {
	if url == f.url {
		return &types.FetchResult{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{f.contentType}},
			Body:       []byte(`<a href="/hidden">hidden</a>`),
		}, nil
	}
	return f.base.Fetch(ctx, url)
}

func TestCrawlContinuesAfterSaveFailure(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<a href="/a">a</a>`
	site.pages[origin+"/a"] = `<p>a</p>`

	c := newTestCrawler(t, site, WithStore(&memoryStore{fail: true}))

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VisitedCount)
	assert.Equal(t, int64(2), stats.SaveErrors)
	assert.Zero(t, stats.Saved)
}

type panickyProcessor struct {
	inner Processor
}

func (p panickyProcessor) Extract(body []byte) types.Content {
	if strings.Contains(string(body), "explode") {
		panic("processor exploded")
	}
	return p.inner.Extract(body)
}

func TestCrawlContainsWorkerPanics(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<a href="/boom">boom</a><a href="/fine">fine</a>`
	site.pages[origin+"/boom"] = `explode`
	site.pages[origin+"/fine"] = `<title>Fine</title>`

	store := &memoryStore{}
	c := newTestCrawler(t, site, WithStore(store))
	c.processor = panickyProcessor{inner: c.processor}

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reasonExhausted, stats.StopReason)
	assert.Equal(t, 3, stats.VisitedCount)
	assert.Contains(t, store.byURL(), origin+"/fine")
}

func TestCrawlDrainIsBounded(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<p>slow</p>`
	site.delay = 10 * time.Second

	c := newTestCrawler(t, site,
		WithStop(types.StopByTime, 30*time.Millisecond, 0),
		WithDrainTimeout(50*time.Millisecond),
	)

	start := time.Now()
	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, stats.StopReason, "time limit")
}

func TestCrawlRunsOnce(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<p>only</p>`
	c := newTestCrawler(t, site)

	_, err := c.Crawl(context.Background())
	require.NoError(t, err)
	_, err = c.Crawl(context.Background())
	assert.Error(t, err)
}

func TestCrawlSampleIsCapped(t *testing.T) {
	site := newFakeSite()
	site.next = endless

	c := newTestCrawler(t, site,
		WithWorkers(4),
		WithStop(types.StopByCount, 0, 30),
		WithSampleSize(20),
	)

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, stats.VisitedCount)
	assert.Len(t, stats.SampleURLs, 20)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	var order []int
	c, err := New(origin,
		WithFetcher(newFakeSite()),
		WithCloser(func() error { order = append(order, 1); return nil }),
		WithCloser(func() error { order = append(order, 2); return errors.New("second") }),
	)
	require.NoError(t, err)

	err = c.Close()
	assert.EqualError(t, err, "second")
	assert.Equal(t, []int{2, 1}, order)
}

func TestNewFromConfigEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Root</title></head><body>
			<p>Root page</p><a href="/one">one</a><a href="/missing">missing</a></body></html>`)
	})
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>One</title></head><body><p>First</p><a href="/">home</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "pages.jsonl")
	cfg := config.Default()
	cfg.Seed = srv.URL
	cfg.Store = path
	cfg.Stop.Duration = config.DurationFrom(10 * time.Second)
	cfg.Engine.PollInterval = config.DurationFrom(20 * time.Millisecond)

	c, err := NewFromConfig(context.Background(), cfg, nil, discardLogger())
	require.NoError(t, err)

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, reasonExhausted, stats.StopReason)
	assert.Equal(t, 3, stats.VisitedCount)
	assert.Equal(t, int64(1), stats.FetchErrors)

	records, err := storage.JSONLFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	titles := []string{records[0].Title, records[1].Title}
	assert.ElementsMatch(t, []string{"Root", "One"}, titles)
}

func TestNewFromConfigRejectsBadSeedBeforeOpeningStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.jsonl")
	cfg := config.Default()
	cfg.Seed = "ftp://example.com/"
	cfg.Store = path

	_, err := NewFromConfig(context.Background(), cfg, nil, discardLogger())
	var scopeErr *ScopeError
	require.True(t, errors.As(err, &scopeErr))
	assert.NoFileExists(t, path)
}

func TestNewFromConfigBloom(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = origin
	cfg.Visited.Mode = "bloom"

	c, err := NewFromConfig(context.Background(), cfg, nil, discardLogger())
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &BloomSet{}, c.visited)
}

type staticSeeds struct {
	urls []string
	err  error
}

func (s staticSeeds) Discover(context.Context, string) ([]string, error) {
	return s.urls, s.err
}

func TestCrawlAddsDiscoveredSeeds(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<title>Home</title>`
	site.pages[origin+"/orphan"] = `<title>Orphan</title><a href="/linked">l</a>`
	site.pages[origin+"/linked"] = `<title>Linked</title>`

	seeds := staticSeeds{urls: []string{origin + "/orphan", "https://other.com/page", origin + "/"}}
	c := newTestCrawler(t, site, WithSeedSource(seeds))

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.VisitedCount)
	assert.Equal(t, 1, site.callCount(origin+"/"))
	assert.Equal(t, 1, site.callCount(origin+"/linked"))
	assert.Zero(t, site.callCount("https://other.com/page"))
	assert.Equal(t, origin+"/", stats.SampleURLs[0])
}

func TestCrawlSurvivesSeedDiscoveryFailure(t *testing.T) {
	site := newFakeSite()
	site.pages[origin+"/"] = `<title>Home</title>`

	c := newTestCrawler(t, site, WithSeedSource(staticSeeds{err: errors.New("sitemap down")}))
	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VisitedCount)
}

func TestNewFromConfigSitemapSeeding(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Root</title></head><body><p>no links</p></body></html>`)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>%s/hidden</loc></url></urlset>`, srvURL)
	})
	mux.HandleFunc("/hidden", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Hidden</title></head></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	store := &memoryStore{}
	cfg := config.Default()
	cfg.Seed = srv.URL
	cfg.Seeding.Sitemap = true
	cfg.Engine.PollInterval = config.DurationFrom(20 * time.Millisecond)

	c, err := NewFromConfig(context.Background(), cfg, nil, discardLogger())
	require.NoError(t, err)
	defer c.Close()
	WithStore(store)(c)

	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VisitedCount)
	assert.Contains(t, store.byURL(), srv.URL+"/hidden")
}

func TestCrawlTimeBoundDoesNotStartJobsAfterDeadline(t *testing.T) {
	site := newFakeSite()
	site.delay = time.Second
	site.pages[origin+"/"] = `<title>Home</title>`
	site.pages[origin+"/a"] = `<title>A</title>`
	site.pages[origin+"/b"] = `<title>B</title>`

	c := newTestCrawler(t, site,
		WithWorkers(1),
		WithStop(types.StopByTime, 200*time.Millisecond, 0),
		WithSeedSource(staticSeeds{urls: []string{origin + "/a", origin + "/b"}}),
	)

	start := time.Now()
	stats, err := c.Crawl(context.Background())
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Contains(t, stats.StopReason, "time limit")
	assert.Equal(t, 1, site.callCount(origin+"/"))
	assert.Zero(t, site.callCount(origin+"/a"), "fetch started after the deadline")
	assert.Zero(t, site.callCount(origin+"/b"))
	assert.Equal(t, int64(1), stats.Fetched)
	assert.Equal(t, []string{origin + "/"}, stats.SampleURLs)
	assert.Less(t, elapsed, 1800*time.Millisecond)
}
