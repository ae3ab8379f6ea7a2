// Package proxy rotates fetches across a fixed list of upstream proxies
// and takes a proxy out of rotation after repeated transport failures.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrNoProxies is returned when every proxy has been taken out of rotation
var ErrNoProxies = errors.New("no working proxies available")

// DefaultMaxFailures is the number of consecutive failures that retires a proxy
const DefaultMaxFailures = 3

// Proxy is one upstream proxy and its usage record
type Proxy struct {
	URL          *url.URL
	FailCount    int
	SuccessCount int
}

// Rotator hands out proxies round-robin
type Rotator struct {
	mu           sync.Mutex
	proxies      []*Proxy
	next         int
	maxFailCount int
}

// ParseLine parses one proxy entry. Accepted forms are host:port,
// http://host:port, https://host:port and socks5://host:port.
func ParseLine(line string) (*url.URL, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errors.New("empty proxy entry")
	}
	if !strings.Contains(line, "://") {
		line = "http://" + line
	}

	u, err := url.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", line, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("invalid proxy %q: unsupported scheme %q", line, u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("invalid proxy %q: want host:port", line)
	}
	return u, nil
}

// NewRotator builds a rotator over entries. maxFailCount <= 0 uses DefaultMaxFailures.
func NewRotator(entries []string, maxFailCount int) (*Rotator, error) {
	if len(entries) == 0 {
		return nil, errors.New("proxy rotator needs at least one proxy")
	}
	if maxFailCount <= 0 {
		maxFailCount = DefaultMaxFailures
	}

	r := &Rotator{maxFailCount: maxFailCount}
	seen := make(map[string]bool)
	for _, entry := range entries {
		u, err := ParseLine(entry)
		if err != nil {
			return nil, err
		}
		if seen[u.String()] {
			continue
		}
		seen[u.String()] = true
		r.proxies = append(r.proxies, &Proxy{URL: u})
	}
	return r, nil
}

// Len returns the number of configured proxies
func (r *Rotator) Len() int {
	return len(r.proxies)
}

// Working returns how many proxies are still in rotation
func (r *Rotator) Working() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.proxies {
		if p.FailCount < r.maxFailCount {
			n++
		}
	}
	return n
}

// Next returns the next proxy still in rotation
func (r *Rotator) Next() (*Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range r.proxies {
		p := r.proxies[r.next]
		r.next = (r.next + 1) % len(r.proxies)
		if p.FailCount < r.maxFailCount {
			return p, nil
		}
	}
	return nil, ErrNoProxies
}

// RecordSuccess clears the failure streak of p
func (r *Rotator) RecordSuccess(p *Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.SuccessCount++
	p.FailCount = 0
}

// RecordFailure counts a transport failure against p
func (r *Rotator) RecordFailure(p *Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.FailCount++
}

type choiceKey struct{}

// Proxy is an http.Transport Proxy function. It picks the next proxy and,
// when the request context came from Track, remembers which one was used.
func (r *Rotator) Proxy(req *http.Request) (*url.URL, error) {
	p, err := r.Next()
	if err != nil {
		return nil, err
	}
	if chosen, ok := req.Context().Value(choiceKey{}).(*atomic.Pointer[Proxy]); ok {
		chosen.Store(p)
	}
	return p.URL, nil
}

// Track prepares ctx for one fetch. Call done with the fetch's transport
// error, or nil, to credit the proxy that carried the request.
func (r *Rotator) Track(ctx context.Context) (context.Context, func(err error)) {
	chosen := new(atomic.Pointer[Proxy])
	done := func(err error) {
		p := chosen.Load()
		if p == nil {
			return
		}
		if err != nil {
			r.RecordFailure(p)
			return
		}
		r.RecordSuccess(p)
	}
	return context.WithValue(ctx, choiceKey{}, chosen), done
}
