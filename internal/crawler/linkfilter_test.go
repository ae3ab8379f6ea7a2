package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrigin(t *testing.T) {
	o, err := NewOrigin("HTTPS://Example.COM/some/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", o.String())

	for _, seed := range []string{"", "example.com", "ftp://example.com/", "https://", "::not a url"} {
		_, err := NewOrigin(seed)
		var scopeErr *ScopeError
		assert.True(t, errors.As(err, &scopeErr), "seed %q: %v", seed, err)
	}
}

func TestOriginAccept(t *testing.T) {
	o, err := NewOrigin("https://example.com/start")
	require.NoError(t, err)

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/about", "https://example.com/about", true},
		{"/about#team", "https://example.com/about", true},
		{"/search?q=go", "https://example.com/search?q=go", true},
		{"https://example.com", "https://example.com/", true},
		{"https://example.com/a/../b", "https://example.com/b", true},
		{"  /padded  ", "https://example.com/padded", true},
		{"about", "", false},
		{"#top", "", false},
		{"mailto:someone@example.com", "", false},
		{"javascript:void(0)", "", false},
		{"http://example.com/insecure", "", false},
		{"https://other.com/", "", false},
		{"//other.com/path", "", false},
		{"https://example.com.evil.com/", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := o.Accept(tt.href)
		assert.Equal(t, tt.ok, ok, "Accept(%q)", tt.href)
		if tt.ok {
			assert.Equal(t, tt.want, got, "Accept(%q)", tt.href)
		}
	}
}

func TestOriginNormalizeMatchesAccept(t *testing.T) {
	o, err := NewOrigin("https://example.com")
	require.NoError(t, err)

	seed, err := o.Normalize("https://Example.com#frag")
	require.NoError(t, err)

	root, ok := o.Accept("/")
	require.True(t, ok)
	assert.Equal(t, root, seed)
}
