package middleware

import (
	"net/http"

	logpkg "github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/request"
	"go.uber.org/zap"
)

// Audit logs security-related events: failed admin auth and quota or burst refusals
func Audit(logger *zap.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &auditResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			statusCode := wrapped.statusCode
			switch statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				logger.Warn("security_event",
					zap.Int("status_code", statusCode),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("ip", logpkg.SanitizeIP(request.ClientIP(r, trustProxy))),
					zap.String("request_id", request.RequestIDFromContext(r.Context())),
				)
			case http.StatusTooManyRequests:
				logger.Warn("rate_limit_violation",
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("ip", logpkg.SanitizeIP(request.ClientIP(r, trustProxy))),
					zap.String("request_id", request.RequestIDFromContext(r.Context())),
				)
			}
		})
	}
}

// auditResponseWriter wraps http.ResponseWriter to capture status code
type auditResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (aw *auditResponseWriter) WriteHeader(code int) {
	aw.statusCode = code
	aw.ResponseWriter.WriteHeader(code)
}

func (aw *auditResponseWriter) Unwrap() http.ResponseWriter {
	return aw.ResponseWriter
}
