package middleware

import (
	"net/http"
)

const (
	// DefaultMaxRequestSize is the default maximum request body size (1MB)
	DefaultMaxRequestSize int64 = 1 << 20 // 1MB
)

// MaxRequestSize limits the size of request bodies. The upload route enforces its own cap.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			defer func() { _ = r.Body.Close() }()

			next.ServeHTTP(w, r)
		})
	}
}
