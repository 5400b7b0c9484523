package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest extracts the client identity from a request.
// Precedence: first entry of X-Forwarded-For, then X-Real-IP, then the
// socket peer address. Handles proxies, load balancers, and direct
// connections.
func FromRequest(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return strings.TrimSpace(realIP)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If split fails, just return the whole thing
		return r.RemoteAddr
	}

	return ip
}
