package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin is the scheme and host of the seed URL. It defines crawl scope.
type Origin struct {
	base *url.URL
	text string
}

// NewOrigin validates a seed URL and derives its origin.
// Only http and https seeds with a host are accepted.
func NewOrigin(seed string) (Origin, error) {
	parsed, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return Origin{}, &ScopeError{URL: seed, Reason: fmt.Sprintf("unparseable: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, &ScopeError{URL: seed, Reason: "scheme must be http or https"}
	}
	if parsed.Host == "" {
		return Origin{}, &ScopeError{URL: seed, Reason: "missing host"}
	}

	base := &url.URL{Scheme: scheme, Host: strings.ToLower(parsed.Host)}
	return Origin{base: base, text: base.String()}, nil
}

// String returns the origin as scheme://host
func (o Origin) String() string {
	return o.text
}

// Accept decides whether href is in scope and resolves it to an absolute URL.
// In scope means site-relative ("/about") or starting with the origin itself.
// Everything else is rejected, including mailto:, javascript: and fragments.
func (o Origin) Accept(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || o.base == nil {
		return "", false
	}
	if !strings.HasPrefix(href, "/") && !strings.HasPrefix(href, o.text) {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := o.base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""

	// "//other.com/x" and "https://example.com.evil.com" pass the prefix test
	if !strings.EqualFold(resolved.Scheme, o.base.Scheme) || !strings.EqualFold(resolved.Host, o.base.Host) {
		return "", false
	}
	resolved.Scheme = o.base.Scheme
	resolved.Host = o.base.Host
	if resolved.Path == "" {
		resolved.Path = "/"
	}

	return resolved.String(), true
}

// Normalize returns the seed URL in the form used for visited-set keys
func (o Origin) Normalize(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &ScopeError{URL: raw, Reason: fmt.Sprintf("unparseable: %v", err)}
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String(), nil
}
