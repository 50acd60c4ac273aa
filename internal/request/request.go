package request

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/benvon/voicenote-intake/internal/services/adminauth"
)

// UnknownIP identifies clients whose address cannot be determined. They share one quota.
const UnknownIP = "UNKNOWN_IP"

type contextKey string

const (
	adminContextKey     contextKey = "admin"
	requestIDContextKey contextKey = "request_id"
)

// ClientIP returns the client address used as the quota key. Proxy headers are honoured
// only when trustProxy is set; otherwise a client could pick its own identity.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
		if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	if ip := normalizeIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return UnknownIP
}

// normalizeIP strips an optional port and returns the canonical form, or "" if s is not an IP.
func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// WithAdmin returns a context carrying verified admin claims.
func WithAdmin(ctx context.Context, claims *adminauth.Claims) context.Context {
	return context.WithValue(ctx, adminContextKey, claims)
}

// AdminFromContext returns the admin claims from the request context, or nil.
func AdminFromContext(r *http.Request) *adminauth.Claims {
	c, _ := r.Context().Value(adminContextKey).(*adminauth.Claims)
	return c
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request ID, or "" when none was assigned.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
