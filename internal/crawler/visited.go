package crawler

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// VisitedSet records URLs that have been handed to a worker.
// TryMarkVisited is the only place the at-most-once rule is enforced.
type VisitedSet interface {
	// TryMarkVisited inserts url and reports whether this call did the insert.
	TryMarkVisited(url string) bool

	// Len returns the number of URLs marked so far.
	Len() int
}

// ExactSet is a VisitedSet backed by a map. It never loses a URL.
type ExactSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewExactSet creates an empty exact visited set
func NewExactSet() *ExactSet {
	return &ExactSet{seen: make(map[string]struct{})}
}

// TryMarkVisited implements VisitedSet
func (s *ExactSet) TryMarkVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Len implements VisitedSet
func (s *ExactSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// BloomSet is a VisitedSet backed by a bloom filter, for crawls too large to
// keep every URL in memory. A false positive makes a URL look visited, so it
// can be skipped but is never fetched twice.
type BloomSet struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	count  int
}

// NewBloomSet sizes a filter for capacity URLs at the given false positive rate
func NewBloomSet(capacity uint, falsePositiveRate float64) (*BloomSet, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("bloom capacity must be positive")
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, fmt.Errorf("bloom false positive rate must be in (0,1), got %v", falsePositiveRate)
	}
	return &BloomSet{
		filter: bloom.NewWithEstimates(capacity, falsePositiveRate),
	}, nil
}

// TryMarkVisited implements VisitedSet
func (s *BloomSet) TryMarkVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.TestAndAdd([]byte(url)) {
		return false
	}
	s.count++
	return true
}

// Len implements VisitedSet
func (s *BloomSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
