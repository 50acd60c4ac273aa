package middleware

import (
	"errors"
	"net/http"
	"strings"

	logpkg "github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/request"
	"github.com/benvon/voicenote-intake/internal/services/adminauth"
	"go.uber.org/zap"
)

// AdminVerifier checks admin bearer tokens
type AdminVerifier interface {
	Verify(tokenString string) (*adminauth.Claims, error)
}

// AdminAuth creates authentication middleware for the admin API
func AdminAuth(verifier AdminVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				respondError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				if errors.Is(err, adminauth.ErrForbidden) {
					respondError(w, http.StatusForbidden, "Forbidden")
					return
				}
				logger.Debug("admin_token_rejected", zap.String("error", logpkg.SanitizeError(err)))
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithAdmin(r.Context(), claims)))
		})
	}
}
