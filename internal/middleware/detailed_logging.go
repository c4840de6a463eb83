package middleware

import (
	"net/http"
	"strings"

	"leadrelay/internal/service"
	"leadrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls what the verbose request logger prints
type DetailedLoggingConfig struct {
	SensitiveHeaders []string
	SkipEndpoints    []string
}

func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		SensitiveHeaders: []string{
			"authorization", "cookie", "set-cookie", "x-relay-signature",
		},
		SkipEndpoints: []string{"/metrics", "/health"},
	}
}

// DetailedLoggingMiddleware logs request headers at debug level. It is only
// installed in verbose mode; bodies are never logged because they carry
// personal data.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range config.SkipEndpoints {
				if r.URL.Path == skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			headers := make(map[string]string, len(r.Header))
			for name, values := range r.Header {
				if isSensitiveHeader(name, config.SensitiveHeaders) {
					headers[name] = "***MASKED***"
				} else {
					headers[name] = strings.Join(values, ", ")
				}
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				"content_length":          r.ContentLength,
				"protocol":                r.Proto,
				"request_headers":         headers,
			}).Debug("Detailed request logging")

			next.ServeHTTP(w, r)
		})
	}
}

func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}
