package http

import (
	"math/rand/v2"
	"net/http"
)

// BrowserProfile represents the request headers a browser sends for a page load
type BrowserProfile struct {
	Browser         string
	UserAgent       string
	AcceptLanguage  string
	Accept          string
	SecChUA         string
	SecChUAPlatform string
	SecChUAMobile   string
	UpgradeInsecure string
}

var browserProfiles = []BrowserProfile{
	{
		Browser:         "chrome",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage:  "en-US,en;q=0.9",
		Accept:          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		SecChUA:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Windows"`,
		SecChUAMobile:   "?0",
		UpgradeInsecure: "1",
	},
	{
		Browser:         "chrome",
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage:  "en-US,en;q=0.9",
		Accept:          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		SecChUA:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Linux"`,
		SecChUAMobile:   "?0",
		UpgradeInsecure: "1",
	},
	{
		Browser:         "firefox",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0",
		AcceptLanguage:  "en-US,en;q=0.5",
		Accept:          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		UpgradeInsecure: "1",
	},
	{
		Browser:        "safari",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
		AcceptLanguage: "en-US,en;q=0.9",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	},
	{
		Browser:         "edge",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		AcceptLanguage:  "en-US,en;q=0.9",
		Accept:          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		SecChUA:         `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Windows"`,
		SecChUAMobile:   "?0",
		UpgradeInsecure: "1",
	},
}

// HeaderRotator picks browser header profiles, optionally limited to one browser
type HeaderRotator struct {
	profiles []BrowserProfile
}

// NewHeaderRotator creates a rotator. An empty browser uses every profile.
func NewHeaderRotator(browser string) *HeaderRotator {
	var profiles []BrowserProfile
	for _, p := range browserProfiles {
		if browser == "" || p.Browser == browser {
			profiles = append(profiles, p)
		}
	}
	if len(profiles) == 0 {
		profiles = browserProfiles
	}
	return &HeaderRotator{profiles: profiles}
}

// RandomProfile returns a random browser profile. Safe for concurrent use.
func (hr *HeaderRotator) RandomProfile() BrowserProfile {
	return hr.profiles[rand.IntN(len(hr.profiles))]
}

// ApplyHeaders applies a random profile's headers to req
func (hr *HeaderRotator) ApplyHeaders(req *http.Request) {
	profile := hr.RandomProfile()

	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept", profile.Accept)
	req.Header.Set("Accept-Language", profile.AcceptLanguage)

	if profile.SecChUA != "" {
		req.Header.Set("Sec-Ch-Ua", profile.SecChUA)
	}
	if profile.SecChUAPlatform != "" {
		req.Header.Set("Sec-Ch-Ua-Platform", profile.SecChUAPlatform)
	}
	if profile.SecChUAMobile != "" {
		req.Header.Set("Sec-Ch-Ua-Mobile", profile.SecChUAMobile)
	}
	if profile.UpgradeInsecure != "" {
		req.Header.Set("Upgrade-Insecure-Requests", profile.UpgradeInsecure)
	}
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Dest", "document")
}
