package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/origincrawl/internal/proxy"
)

func newTestFetcher(t *testing.T, opts Options) *Fetcher {
	t.Helper()
	f, err := NewFetcher(opts)
	require.NoError(t, err)
	return f
}

func TestFetchReturnsStatusHeadersAndBody(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>Hi</title></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{UserAgent: "test-agent"})
	res, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "<html><title>Hi</title></html>", string(res.Body))
	assert.Equal(t, srv.URL+"/page", res.FinalURL)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "test-agent", <-agents)
}

func TestFetchNon200IsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, DefaultOptions())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, DefaultOptions())
	res, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
}

func TestFetchDecodesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("<p>zipped</p>"))
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := newTestFetcher(t, DefaultOptions())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>zipped</p>", string(res.Body))
}

func TestFetchDecodesBrotli(t *testing.T) {
	var buf bytes.Buffer
	br := brotli.NewWriter(&buf)
	_, _ = br.Write([]byte("<p>brotli</p>"))
	require.NoError(t, br.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := newTestFetcher(t, DefaultOptions())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>brotli</p>", string(res.Body))
}

func TestFetchConvertsCharsetToUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>caf\xe9</p>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, DefaultOptions())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>café</p>", string(res.Body))
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{MaxBodyBytes: 1024})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func TestFetchReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{ReadTimeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchHonoursContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := newTestFetcher(t, DefaultOptions())
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRotateHeadersSendsBrowserProfile(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{RotateHeaders: true, UserAgent: "ignored"})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	got := <-headers
	assert.True(t, strings.HasPrefix(got.Get("User-Agent"), "Mozilla/5.0"), "got %q", got.Get("User-Agent"))
	assert.Contains(t, got.Get("Accept"), "text/html")
}

func TestHeaderRotatorFiltersByBrowser(t *testing.T) {
	hr := NewHeaderRotator("firefox")
	for i := 0; i < 20; i++ {
		assert.Contains(t, hr.RandomProfile().UserAgent, "Firefox")
	}

	// unknown browsers fall back to the full list
	all := NewHeaderRotator("netscape")
	assert.Len(t, all.profiles, len(browserProfiles))
}

func TestLookupTLSProfile(t *testing.T) {
	for _, name := range TLSProfileNames() {
		profile, err := LookupTLSProfile(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, profile.Name)
	}

	p, err := LookupTLSProfile(" Chrome ")
	require.NoError(t, err)
	assert.Equal(t, "chrome", p.Browser)

	_, err = LookupTLSProfile("opera")
	assert.Error(t, err)
}

func TestNewFetcherRejectsUnknownTLSProfile(t *testing.T) {
	_, err := NewFetcher(Options{TLSProfile: "lynx"})
	assert.Error(t, err)
}

func TestNewFetcherAppliesDefaults(t *testing.T) {
	f := newTestFetcher(t, Options{})
	defaults := DefaultOptions()
	assert.Equal(t, defaults.ReadTimeout, f.Client().Timeout)
	assert.Equal(t, defaults.MaxBodyBytes, f.maxBodyBytes)
}

func TestFetchThroughProxy(t *testing.T) {
	hosts := make(chan string, 1)
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts <- r.Host
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>via proxy</p>"))
	}))
	defer proxySrv.Close()

	f := newTestFetcher(t, Options{Proxies: []string{proxySrv.URL}})
	res, err := f.Fetch(context.Background(), "http://origin.invalid/page")
	require.NoError(t, err)
	assert.Equal(t, "<p>via proxy</p>", string(res.Body))
	assert.Equal(t, "origin.invalid", <-hosts)
	assert.Equal(t, 1, f.proxies.Working())
}

func TestFetchRetiresDeadProxy(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	addr := dead.Listener.Addr().String()
	dead.Close()

	f := newTestFetcher(t, Options{Proxies: []string{addr}, ProxyMaxFailures: 1})

	_, err := f.Fetch(context.Background(), "http://origin.invalid/")
	require.Error(t, err)
	assert.Zero(t, f.proxies.Working())

	_, err = f.Fetch(context.Background(), "http://origin.invalid/")
	assert.ErrorIs(t, err, proxy.ErrNoProxies)
}

func TestNewFetcherRejectsBadProxy(t *testing.T) {
	_, err := NewFetcher(Options{Proxies: []string{"gopher://x:70"}})
	assert.Error(t, err)
}
