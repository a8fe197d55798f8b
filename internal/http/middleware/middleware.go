// Package middleware holds the http.Handler wrappers that run around the
// router: access logging, panic recovery, security headers and rate
// limiting.
package middleware

import (
	"net"
	"net/http"
)

// Middleware wraps a handler with extra behaviour.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one is the outermost:
// Chain(h, a, b) serves requests as a(b(h)).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ClientIP is the address requests are attributed to. It reads
// r.RemoteAddr, which handlers.ProxyHeaders rewrites from
// X-Forwarded-For when the server runs behind a trusted proxy.
func ClientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// Already a bare address (ProxyHeaders strips the port).
		return r.RemoteAddr
	}
	return host
}
