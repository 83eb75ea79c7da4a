package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// forwardedHeaders are consulted in order before RemoteAddr.
var forwardedHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// GetClientIP returns the caller's address for logging. The first parseable
// entry of a forwarding header wins; entries that are not IP addresses are
// skipped so a spoofed or mangled header falls through to RemoteAddr.
func GetClientIP(r *http.Request) string {
	for _, header := range forwardedHeaders {
		for _, candidate := range strings.Split(r.Header.Get(header), ",") {
			if addr, ok := parseAddr(candidate); ok {
				return addr
			}
		}
	}

	if addr, ok := parseAddr(r.RemoteAddr); ok {
		return addr
	}
	return r.RemoteAddr
}

// parseAddr accepts a bare address or host:port, with or without IPv6
// brackets, and returns the normalized address.
func parseAddr(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
