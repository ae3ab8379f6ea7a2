package http

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// TLSProfile represents a browser TLS fingerprint
type TLSProfile struct {
	Name     string
	ClientID utls.ClientHelloID

	// Browser selects the matching header profile
	Browser string
}

var tlsProfiles = map[string]TLSProfile{
	"chrome":  {Name: "chrome", ClientID: utls.HelloChrome_131, Browser: "chrome"},
	"firefox": {Name: "firefox", ClientID: utls.HelloFirefox_120, Browser: "firefox"},
	"edge":    {Name: "edge", ClientID: utls.HelloEdge_106, Browser: "edge"},
	"safari":  {Name: "safari", ClientID: utls.HelloSafari_16_0, Browser: "safari"},
}

// TLSProfileNames lists the accepted --tls-profile values
func TLSProfileNames() []string {
	names := make([]string, 0, len(tlsProfiles))
	for name := range tlsProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupTLSProfile finds a profile by name
func LookupTLSProfile(name string) (TLSProfile, error) {
	profile, ok := tlsProfiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return TLSProfile{}, fmt.Errorf("unknown TLS profile %q (want one of %s)", name, strings.Join(TLSProfileNames(), ", "))
	}
	return profile, nil
}

// TLSDialer opens TLS connections that present a browser ClientHello
type TLSDialer struct {
	profile TLSProfile
	dialer  *net.Dialer
}

// NewTLSDialer creates a dialer for the given profile
func NewTLSDialer(profile TLSProfile, connectTimeout time.Duration) *TLSDialer {
	return &TLSDialer{
		profile: profile,
		dialer:  &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second},
	}
}

// DialTLSContext is suitable for http.Transport.DialTLSContext.
// ALPN is pinned to http/1.1 because the transport speaks HTTP/1 over
// connections it did not dial itself.
func (d *TLSDialer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("split address %q: %w", addr, err)
	}

	spec, err := utls.UTLSIdToSpec(d.profile.ClientID)
	if err != nil {
		return nil, fmt.Errorf("build %s client hello: %w", d.profile.Name, err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	rawConn, err := d.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	conn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("apply %s client hello: %w", d.profile.Name, err)
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return conn, nil
}
