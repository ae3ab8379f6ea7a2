package crawler

import (
	"context"
	"sync"
	"time"
)

// Frontier is the queue of discovered but not yet dispatched URLs.
// Any number of jobs may Push concurrently; only the dispatch loop Pops.
// Duplicates are allowed here, the visited set collapses them at dispatch.
type Frontier struct {
	mu    sync.Mutex
	items []string

	// ready holds at most one wake-up token for a waiting Pop
	ready chan struct{}
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		items: make([]string, 0, 64),
		ready: make(chan struct{}, 1),
	}
}

// Push appends a URL to the tail. It never blocks.
func (f *Frontier) Push(url string) {
	f.mu.Lock()
	f.items = append(f.items, url)
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// Pop removes the head URL, waiting up to timeout for one to arrive.
// It returns false if nothing arrived in time or ctx was cancelled.
func (f *Frontier) Pop(ctx context.Context, timeout time.Duration) (string, bool) {
	if url, ok := f.tryPop(); ok {
		return url, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false
		case <-timer.C:
			return f.tryPop()
		case <-f.ready:
			if url, ok := f.tryPop(); ok {
				return url, true
			}
		}
	}
}

func (f *Frontier) tryPop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return "", false
	}

	url := f.items[0]
	f.items[0] = ""
	f.items = f.items[1:]

	// Reclaim the backing array once it has drained
	if len(f.items) == 0 {
		f.items = f.items[:0:0]
	}
	return url, true
}

// Len returns the number of pending URLs, duplicates included
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// IsEmpty checks if the frontier has no more URLs
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}
