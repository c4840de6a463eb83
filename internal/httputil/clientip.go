package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address used for per-client rate limiting and logs.
// Forwarding headers are only trusted when the relay sits behind a proxy; a
// browser talking to the relay directly could otherwise forge them.
func GetClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
