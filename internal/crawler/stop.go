package crawler

import (
	"fmt"
	"time"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// StopPolicy decides when the dispatch loop should stop taking new work.
// ShouldStop must not have side effects; it is polled once per loop pass.
type StopPolicy interface {
	ShouldStop() bool

	// Reason is reported in CrawlStats when the policy fires.
	Reason() string
}

// TimeBound stops once the crawl has run for the configured duration
type TimeBound struct {
	start    time.Time
	duration time.Duration
	now      func() time.Time
}

// NewTimeBound starts the clock now
func NewTimeBound(duration time.Duration) *TimeBound {
	return &TimeBound{start: time.Now(), duration: duration, now: time.Now}
}

// Start restarts the clock. The crawler calls it when dispatch begins.
func (t *TimeBound) Start() {
	t.start = t.now()
}

// ShouldStop implements StopPolicy
func (t *TimeBound) ShouldStop() bool {
	return t.now().Sub(t.start) >= t.duration
}

// Deadline reports when the policy fires. Dispatch stops waiting for a
// worker slot at this instant.
func (t *TimeBound) Deadline() (time.Time, bool) {
	return t.start.Add(t.duration), true
}

// Reason implements StopPolicy
func (t *TimeBound) Reason() string {
	return fmt.Sprintf("time limit %s reached", t.duration)
}

// CountBound stops once the visited set holds max URLs
type CountBound struct {
	max     int
	visited VisitedSet
}

// NewCountBound stops after max URLs have been dispatched
func NewCountBound(max int, visited VisitedSet) *CountBound {
	return &CountBound{max: max, visited: visited}
}

// ShouldStop implements StopPolicy
func (c *CountBound) ShouldStop() bool {
	return c.visited.Len() >= c.max
}

// Reason implements StopPolicy
func (c *CountBound) Reason() string {
	return fmt.Sprintf("count limit %d reached", c.max)
}

// NewStopPolicy builds the policy for the chosen stop basis
func NewStopPolicy(basis types.StopBasis, duration time.Duration, maxURLs int, visited VisitedSet) (StopPolicy, error) {
	switch basis {
	case types.StopByTime:
		if duration <= 0 {
			return nil, fmt.Errorf("duration must be positive, got %v", duration)
		}
		return NewTimeBound(duration), nil
	case types.StopByCount:
		if maxURLs <= 0 {
			return nil, fmt.Errorf("max URLs must be positive, got %d", maxURLs)
		}
		return NewCountBound(maxURLs, visited), nil
	default:
		return nil, fmt.Errorf("unknown stop basis %q", basis)
	}
}
