package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown has been called.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// ErrDrainTimeout is returned by Shutdown when running jobs outlive the drain deadline.
	ErrDrainTimeout = errors.New("drain deadline exceeded, in-flight jobs abandoned")
)

// ScopeError reports a seed URL that cannot start a crawl
type ScopeError struct {
	URL    string
	Reason string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("invalid seed URL %q: %s", e.URL, e.Reason)
}

// FetchError describes a page that produced no content: a transport
// failure, a timeout, or a status other than 200.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: non-200 status: %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
