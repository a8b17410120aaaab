package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the key shared by requests with no usable address.
const UnknownClient = "unknown"

// ClientKey prefers the direct peer address, then the first entry of
// X-Forwarded-For, then UnknownClient.
func ClientKey(r *http.Request) string {
	if host := remoteHost(r.RemoteAddr); host != "" {
		return host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return UnknownClient
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
