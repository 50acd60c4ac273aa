package middleware

import (
	"net/http"
)

// SecurityHeaders sets security headers on all responses
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Recording happens on the embedding site, never on this origin
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Audio served from here is played by pages on other origins
			w.Header().Set("Content-Security-Policy", "default-src 'none'; media-src 'self'")
			w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")

			// HSTS only over TLS and when explicitly enabled, so local development is unaffected
			if enableHSTS && r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}

			next.ServeHTTP(w, r)
		})
	}
}
