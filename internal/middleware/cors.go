package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	logpkg "github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const defaultCORSMaxAge = 86400

// CORSReloader wraps rs/cors and periodically reloads CORS config from the settings store.
type CORSReloader struct {
	next     http.Handler
	store    settings.Store
	fallback string // SITE_ORIGINS
	log      *zap.Logger
	interval time.Duration
	mu       sync.RWMutex
	current  http.Handler
	origins  []string
}

// NewCORSReloader creates a CORS middleware that loads config from settings and hot-reloads it.
func NewCORSReloader(store settings.Store, siteOriginsFallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	return &CORSReloader{
		store:    store,
		fallback: strings.TrimSpace(siteOriginsFallback),
		log:      log,
		interval: reloadInterval,
	}
}

// Middleware returns a middleware that wraps next with CORS and hot-reload. The reloader holds a
// single next handler, so wrap the router itself rather than registering it with mux Use.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		r.next = next
		r.load(context.Background())
		return r
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

// Origins returns the currently allowed origins.
func (r *CORSReloader) Origins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.origins...)
}

func (r *CORSReloader) load(ctx context.Context) {
	if r.next == nil {
		return
	}

	var cfg models.CorsConfig
	found, err := settings.GetJSON(ctx, r.store, settings.KeyCorsConfig, &cfg)
	if err != nil {
		r.log.Warn("failed_to_load_cors_config_using_fallback", zap.String("error", logpkg.SanitizeError(err)))
	}

	var origins []string
	allowCreds := false
	maxAge := defaultCORSMaxAge
	if err != nil || !found {
		origins = models.SplitOrigins(r.fallback)
	} else {
		origins = cfg.Origins()
		allowCreds = cfg.AllowCredentials
		if cfg.MaxAge > 0 {
			maxAge = cfg.MaxAge
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
	})
	h := c.Handler(r.next)

	r.mu.Lock()
	r.current = h
	r.origins = origins
	r.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (r *CORSReloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.current
	r.mu.RUnlock()
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if r.next != nil {
		r.next.ServeHTTP(w, req)
	}
}
