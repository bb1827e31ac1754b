package pdf

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var privateRanges = []struct{ start, end net.IP }{
	{net.ParseIP("10.0.0.0"), net.ParseIP("10.255.255.255")},
	{net.ParseIP("172.16.0.0"), net.ParseIP("172.31.255.255")},
	{net.ParseIP("192.168.0.0"), net.ParseIP("192.168.255.255")},
	{net.ParseIP("169.254.0.0"), net.ParseIP("169.254.255.255")},
	{net.ParseIP("100.64.0.0"), net.ParseIP("100.127.255.255")},
	// fc00::/7
	{net.ParseIP("fc00::"), net.ParseIP("fdff:ffff:ffff:ffff:ffff:ffff:ffff:ffff")},
	// fe80::/10
	{net.ParseIP("fe80::"), net.ParseIP("febf:ffff:ffff:ffff:ffff:ffff:ffff:ffff")},
}

// isPrivateIP reports whether ip is loopback, link-local or in a private range.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	ip16 := ip.To16()
	for _, r := range privateRanges {
		if bytesInRange(ip16, r.start.To16(), r.end.To16()) {
			return true
		}
	}
	return false
}

func bytesInRange(ip, lo, hi []byte) bool {
	for i := range ip {
		if ip[i] < lo[i] {
			return false
		}
		if ip[i] > hi[i] {
			return false
		}
	}
	return true
}

// validateURLNotPrivate rejects non-HTTP schemes and hosts that resolve to
// private addresses.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSRF, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrSSRF)
	}
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrDownloadFailed, host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, ipStr)
		}
	}
	return nil
}

// redirectGuard re-validates every redirect hop.
func redirectGuard(allowPrivate bool) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("%w: too many redirects", ErrSSRF)
		}
		if allowPrivate {
			return nil
		}
		return validateURLNotPrivate(req.URL.String())
	}
}
