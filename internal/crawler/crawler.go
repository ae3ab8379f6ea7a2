package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	customhttp "github.com/BenjaminSRussell/origincrawl/internal/http"
	"github.com/BenjaminSRussell/origincrawl/internal/parser"
	"github.com/BenjaminSRussell/origincrawl/internal/storage"
	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

const (
	reasonInterrupted = "interrupted"
	reasonExhausted   = "frontier exhausted"
)

// Fetcher retrieves a single URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*types.FetchResult, error)
}

// Processor turns an HTML body into page content
type Processor interface {
	Extract(body []byte) types.Content
}

// Store receives one record per processed page. It must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, record types.PageRecord) error
}

// State is the lifecycle stage of a crawl
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SeedSource supplies extra starting URLs, such as a site's sitemap entries
type SeedSource interface {
	Discover(ctx context.Context, seed string) ([]string, error)
}

// Crawler is the main crawler engine
type Crawler struct {
	origin   Origin
	seed     string
	frontier *Frontier
	visited  VisitedSet
	policy   StopPolicy

	fetcher   Fetcher
	processor Processor
	store     Store
	seeds     SeedSource
	logger    *slog.Logger
	closers   []func() error

	workers          int
	pollInterval     time.Duration
	drainTimeout     time.Duration
	progressInterval time.Duration
	sampleSize       int

	stopBasis    types.StopBasis
	stopDuration time.Duration
	stopMaxURLs  int

	state   atomic.Int32
	started atomic.Bool

	// sample is written only by the dispatch loop
	sample []string

	fetched      atomic.Int64
	fetchErrors  atomic.Int64
	saved        atomic.Int64
	saveErrors   atomic.Int64
	bytesFetched atomic.Int64
}

// Option configures a Crawler
type Option func(*Crawler)

// WithFetcher sets the page fetcher
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) { c.fetcher = f }
}

// WithProcessor sets the content extractor
func WithProcessor(p Processor) Option {
	return func(c *Crawler) { c.processor = p }
}

// WithStore sets where page records go. Without one, records are discarded.
func WithStore(s Store) Option {
	return func(c *Crawler) { c.store = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// WithVisitedSet replaces the default exact visited set
func WithVisitedSet(v VisitedSet) Option {
	return func(c *Crawler) { c.visited = v }
}

// WithStop selects the stop basis and its limit
func WithStop(basis types.StopBasis, duration time.Duration, maxURLs int) Option {
	return func(c *Crawler) {
		c.stopBasis = basis
		c.stopDuration = duration
		c.stopMaxURLs = maxURLs
	}
}

// WithStopPolicy installs a custom stop policy, overriding WithStop
func WithStopPolicy(p StopPolicy) Option {
	return func(c *Crawler) { c.policy = p }
}

// WithWorkers sets the number of concurrent fetches
func WithWorkers(n int) Option {
	return func(c *Crawler) { c.workers = n }
}

// WithPollInterval sets how long the dispatch loop waits on an empty frontier
func WithPollInterval(d time.Duration) Option {
	return func(c *Crawler) { c.pollInterval = d }
}

// WithDrainTimeout bounds how long in-flight jobs may run after dispatch stops
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Crawler) { c.drainTimeout = d }
}

// WithProgressInterval sets the progress log period. Zero disables it.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Crawler) { c.progressInterval = d }
}

// WithSampleSize sets how many visited URLs are kept for the summary
func WithSampleSize(n int) Option {
	return func(c *Crawler) { c.sampleSize = n }
}

// WithSeedSource adds URLs from src to the frontier alongside the seed.
// Out-of-scope URLs are dropped.
func WithSeedSource(src SeedSource) Option {
	return func(c *Crawler) { c.seeds = src }
}

// WithCloser registers a cleanup run by Close
func WithCloser(fn func() error) Option {
	return func(c *Crawler) { c.closers = append(c.closers, fn) }
}

// New creates a new crawler instance
func New(seed string, opts ...Option) (*Crawler, error) {
	origin, err := NewOrigin(seed)
	if err != nil {
		return nil, err
	}
	normalized, err := origin.Normalize(seed)
	if err != nil {
		return nil, err
	}

	c := &Crawler{
		origin:           origin,
		seed:             normalized,
		frontier:         NewFrontier(),
		workers:          5,
		pollInterval:     time.Second,
		drainTimeout:     30 * time.Second,
		progressInterval: 5 * time.Second,
		sampleSize:       20,
		stopBasis:        types.StopByTime,
		stopDuration:     10 * time.Second,
		stopMaxURLs:      100,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", c.workers)
	}
	if c.pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", c.pollInterval)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.visited == nil {
		c.visited = NewExactSet()
	}
	if c.store == nil {
		c.store = storage.Discard{}
	}
	if c.processor == nil {
		c.processor = parser.New()
	}
	if c.fetcher == nil {
		fetcher, err := customhttp.NewFetcher(customhttp.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create fetcher: %w", err)
		}
		c.fetcher = fetcher
	}
	if c.policy == nil {
		policy, err := NewStopPolicy(c.stopBasis, c.stopDuration, c.stopMaxURLs, c.visited)
		if err != nil {
			return nil, err
		}
		c.policy = policy
	}

	return c, nil
}

// Seed returns the normalized seed URL
func (c *Crawler) Seed() string {
	return c.seed
}

// Origin returns the crawl scope
func (c *Crawler) Origin() Origin {
	return c.origin
}

// State returns the current lifecycle stage
func (c *Crawler) State() State {
	return State(c.state.Load())
}

func (c *Crawler) setState(s State) {
	c.state.Store(int32(s))
}

// Crawl runs the crawl until the stop policy fires, the frontier is
// exhausted, or ctx is cancelled. A Crawler runs at most once.
func (c *Crawler) Crawl(ctx context.Context) (*types.CrawlStats, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, errors.New("crawler has already run")
	}

	pool, err := NewWorkerPool(ctx, c.workers, c.logger)
	if err != nil {
		return nil, err
	}

	c.frontier.Push(c.seed)
	c.addDiscoveredSeeds(ctx)

	start := time.Now()
	if s, ok := c.policy.(interface{ Start() }); ok {
		s.Start()
	}

	c.setState(StateRunning)
	c.logger.Info("starting crawl",
		"seed", c.seed,
		"origin", c.origin.String(),
		"workers", c.workers,
	)

	stopProgress := c.reportProgress(pool)
	reason := c.dispatch(ctx, pool)

	c.setState(StateDraining)
	c.logger.Info("dispatch stopped, draining", "reason", reason, "in_flight", pool.InFlight())

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.drainTimeout)
	if err := pool.Shutdown(drainCtx, true); err != nil {
		c.logger.Warn("drain incomplete", "error", err)
	}
	cancel()
	stopProgress()

	c.setState(StateStopped)

	stats := &types.CrawlStats{
		SeedURL:      c.seed,
		VisitedCount: c.visited.Len(),
		SampleURLs:   append([]string(nil), c.sample...),
		Fetched:      c.fetched.Load(),
		FetchErrors:  c.fetchErrors.Load(),
		Saved:        c.saved.Load(),
		SaveErrors:   c.saveErrors.Load(),
		BytesFetched: c.bytesFetched.Load(),
		Elapsed:      time.Since(start),
		StopReason:   reason,
	}
	c.logger.Info("crawl finished",
		"reason", reason,
		"visited", stats.VisitedCount,
		"fetched", stats.Fetched,
		"fetch_errors", stats.FetchErrors,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
	)

	return stats, nil
}

func (c *Crawler) addDiscoveredSeeds(ctx context.Context) {
	if c.seeds == nil {
		return
	}

	urls, err := c.seeds.Discover(ctx, c.seed)
	if err != nil {
		c.logger.Warn("seed discovery failed", "error", err)
	}

	added := 0
	for _, u := range urls {
		if resolved, ok := c.origin.Accept(u); ok {
			c.frontier.Push(resolved)
			added++
		}
	}
	c.logger.Info("discovered seeds", "found", len(urls), "in_scope", added)
}

// dispatch is the only goroutine that pops the frontier and marks URLs
// visited. It returns the reason it stopped.
func (c *Crawler) dispatch(ctx context.Context, pool *WorkerPool) string {
	for {
		if ctx.Err() != nil {
			return reasonInterrupted
		}
		if c.policy.ShouldStop() {
			return c.policy.Reason()
		}
		// InFlight is read first: a job pushes its links before it leaves
		// the in-flight count, and only this loop starts jobs.
		if pool.InFlight() == 0 && c.frontier.IsEmpty() {
			return reasonExhausted
		}

		target, ok := c.frontier.Pop(ctx, c.pollInterval)
		if !ok {
			continue
		}
		if !c.visited.TryMarkVisited(target) {
			continue
		}

		err := c.submit(ctx, pool, target)
		if err == nil {
			if len(c.sample) < c.sampleSize {
				c.sample = append(c.sample, target)
			}
			continue
		}
		c.logger.Debug("job not submitted", "url", target, "error", err)
		if ctx.Err() != nil {
			return reasonInterrupted
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return c.policy.Reason()
		}
	}
}

// submit waits for a worker slot, but never past the stop policy's deadline
func (c *Crawler) submit(ctx context.Context, pool *WorkerPool, target string) error {
	if d, ok := c.policy.(interface{ Deadline() (time.Time, bool) }); ok {
		if deadline, ok := d.Deadline(); ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, deadline)
			defer cancel()
		}
	}
	return pool.Submit(ctx, target, func(jobCtx context.Context) {
		c.visit(jobCtx, target)
	})
}

// visit fetches one page, pushes its in-scope links, and saves the record.
// Failures are logged and confined to this page.
func (c *Crawler) visit(ctx context.Context, target string) {
	res, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		c.fetchErrors.Add(1)
		c.logger.Warn("fetch failed", "error", &FetchError{URL: target, Err: err})
		return
	}
	c.bytesFetched.Add(int64(len(res.Body)))

	if res.StatusCode != http.StatusOK {
		c.fetchErrors.Add(1)
		c.logger.Warn("fetch failed", "error", &FetchError{URL: target, StatusCode: res.StatusCode})
		return
	}
	if !isHTML(res.Header) {
		c.logger.Debug("skipping non-HTML response", "url", target, "content_type", res.Header.Get("Content-Type"))
		return
	}
	c.fetched.Add(1)

	content := c.processor.Extract(res.Body)

	discovered := 0
	for _, href := range content.Links {
		if link, ok := c.origin.Accept(href); ok {
			c.frontier.Push(link)
			discovered++
		}
	}

	record := types.PageRecord{
		URL:        target,
		Title:      content.Title,
		BodyText:   content.BodyText,
		StatusCode: res.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}
	if err := c.store.Save(ctx, record); err != nil {
		c.saveErrors.Add(1)
		c.logger.Warn("save failed", "url", target, "error", err)
	} else {
		c.saved.Add(1)
	}

	c.logger.Debug("page processed", "url", target, "title", content.Title, "links", discovered)
}

// reportProgress logs crawl progress periodically until the returned func is called
func (c *Crawler) reportProgress(pool *WorkerPool) func() {
	if c.progressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.logger.Info("crawl progress",
					"state", c.State().String(),
					"visited", c.visited.Len(),
					"pending", c.frontier.Len(),
					"in_flight", pool.InFlight(),
					"fetched", c.fetched.Load(),
					"errors", c.fetchErrors.Load(),
				)
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// Close releases the store and any other resources registered with WithCloser
func (c *Crawler) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isHTML treats a missing content type as HTML
func isHTML(h http.Header) bool {
	ct := strings.ToLower(h.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "html")
}
