// Package http fetches pages for the crawler: timeouts, body decoding,
// browser-like headers, and optional uTLS fingerprints.
package http

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/BenjaminSRussell/origincrawl/internal/proxy"
	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// ErrBodyTooLarge is returned when a response exceeds Options.MaxBodyBytes
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Options controls HTTP fetching behaviour
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
	MaxBodyBytes   int64

	// TLSProfile selects a uTLS ClientHello and matching headers. Empty uses crypto/tls.
	TLSProfile string

	// RotateHeaders sends a random browser header profile per request
	RotateHeaders bool

	// Proxies are rotated round-robin. Empty means the environment's proxy settings.
	// Proxied HTTPS tunnels use crypto/tls, not the TLSProfile.
	Proxies          []string
	ProxyMaxFailures int
}

// DefaultOptions returns the fetch defaults
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 3 * time.Second,
		ReadTimeout:    30 * time.Second,
		UserAgent:      "origincrawl/1.0",
		MaxBodyBytes:   10 * 1024 * 1024,
	}
}

// Fetcher implements page fetching over net/http
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	headers      *HeaderRotator
	proxies      *proxy.Rotator
}

// NewFetcher constructs a fetcher. Timeouts are fixed here for the life of the fetcher.
func NewFetcher(opts Options) (*Fetcher, error) {
	defaults := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaults.MaxBodyBytes
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// bodies are decoded by readBody so brotli is handled too
		DisableCompression: true,
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   opts.ReadTimeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}

	if opts.TLSProfile != "" {
		profile, err := LookupTLSProfile(opts.TLSProfile)
		if err != nil {
			return nil, err
		}
		transport.DialTLSContext = NewTLSDialer(profile, opts.ConnectTimeout).DialTLSContext
		f.headers = NewHeaderRotator(profile.Browser)
	} else if opts.RotateHeaders {
		f.headers = NewHeaderRotator("")
	}

	if len(opts.Proxies) > 0 {
		rotator, err := proxy.NewRotator(opts.Proxies, opts.ProxyMaxFailures)
		if err != nil {
			return nil, err
		}
		transport.Proxy = rotator.Proxy
		f.proxies = rotator
	}

	return f, nil
}

// Fetch downloads a single URL. A non-200 status is not an error here;
// the caller decides what to do with it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*types.FetchResult, error) {
	done := func(error) {}
	if f.proxies != nil {
		ctx, done = f.proxies.Track(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if f.headers != nil {
		f.headers.ApplyHeaders(req)
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.8")
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &types.FetchResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		FinalURL:   finalURL,
		Body:       body,
	}, nil
}

// readBody undoes Content-Encoding, converts HTML to UTF-8, and enforces the size cap
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && strings.Contains(strings.ToLower(contentType), "html") {
		decoded, err := charset.NewReader(reader, contentType)
		if err != nil {
			return nil, fmt.Errorf("charset decode: %w", err)
		}
		reader = decoded
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, nil
}

// Client exposes the underlying HTTP client
func (f *Fetcher) Client() *http.Client {
	return f.client
}
