package middleware

import (
	"net/http"
	"net/netip"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

var forwardingHeaders = []string{"True-Client-IP", "X-Real-IP", "X-Forwarded-For"}

// RealIP applies chi's RealIP only to requests whose socket peer is a
// trusted proxy. Everyone else keeps the socket address, and their
// forwarding headers are dropped so nothing downstream reads them.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		forwarded := chiMiddleware.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peerTrusted(clientIP(r), trusted) {
				forwarded.ServeHTTP(w, r)
				return
			}
			for _, h := range forwardingHeaders {
				r.Header.Del(h)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
