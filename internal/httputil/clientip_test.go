package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name           string
		remoteAddr     string
		headers        map[string]string
		trustForwarded bool
		expected       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:51234",
			expected:   "192.0.2.10",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			expected:   "2001:db8::1",
		},
		{
			name:       "forwarded header ignored without trust",
			remoteAddr: "192.0.2.10:51234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			expected:   "192.0.2.10",
		},
		{
			name:           "first forwarded address when trusted",
			remoteAddr:     "10.0.0.2:80",
			headers:        map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			trustForwarded: true,
			expected:       "203.0.113.5",
		},
		{
			name:           "real ip header when trusted",
			remoteAddr:     "10.0.0.2:80",
			headers:        map[string]string{"X-Real-IP": "203.0.113.9"},
			trustForwarded: true,
			expected:       "203.0.113.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.44",
			expected:   "192.0.2.44",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/submissions", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.expected, GetClientIP(req, tt.trustForwarded))
		})
	}
}
