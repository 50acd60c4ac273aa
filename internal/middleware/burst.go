package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	logpkg "github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/request"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// DefaultBurstRate caps upload attempts per client independently of the daily quota.
const DefaultBurstRate = "20-M"

// BurstLimiter wraps ulule/limiter and periodically reloads its rate from the settings store.
// Every attempt counts, refused ones included.
type BurstLimiter struct {
	next        http.Handler
	store       limiter.Store
	settings    settings.Store
	defaultRate string
	trustProxy  bool
	log         *zap.Logger
	interval    time.Duration
	mu          sync.RWMutex
	current     http.Handler
	rate        string
}

// BurstOptions configures a BurstLimiter.
type BurstOptions struct {
	// Redis, when set, shares counters across instances; otherwise counters are per process.
	Redis       *redis.Client
	Prefix      string
	DefaultRate string
	TrustProxy  bool
	Interval    time.Duration
}

// NewBurstLimiter creates the limiter store once; only the rate is reloaded.
func NewBurstLimiter(s settings.Store, opts BurstOptions, log *zap.Logger) (*BurstLimiter, error) {
	if opts.DefaultRate == "" {
		opts.DefaultRate = DefaultBurstRate
	}
	if opts.Prefix == "" {
		opts.Prefix = "burst"
	}
	storeOpts := limiter.StoreOptions{
		Prefix:          opts.Prefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	}

	var store limiter.Store
	if opts.Redis != nil {
		rs, err := redisstore.NewStoreWithOptions(opts.Redis, storeOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store for burst limiter: %w", err)
		}
		store = rs
	} else {
		store = memorystore.NewStoreWithOptions(storeOpts)
	}

	return &BurstLimiter{
		store:       store,
		settings:    s,
		defaultRate: opts.DefaultRate,
		trustProxy:  opts.TrustProxy,
		log:         log,
		interval:    opts.Interval,
	}, nil
}

// Middleware returns a middleware that wraps next with rate limiting and hot-reload.
// It holds a single next handler and must wrap exactly one route.
func (b *BurstLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		b.next = next
		b.load(context.Background())
		return b
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (b *BurstLimiter) Start(ctx context.Context) {
	if b.interval <= 0 {
		return
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.load(ctx)
		}
	}
}

// Rate returns the rate currently applied.
func (b *BurstLimiter) Rate() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rate
}

func (b *BurstLimiter) load(ctx context.Context) {
	if b.next == nil {
		return
	}

	rateStr := b.defaultRate
	var cfg models.BurstConfig
	found, err := settings.GetJSON(ctx, b.settings, settings.KeyBurstConfig, &cfg)
	switch {
	case err != nil:
		b.log.Warn("failed_to_load_burst_config_using_default",
			zap.String("error", logpkg.SanitizeError(err)),
			zap.String("default_rate", b.defaultRate),
		)
	case found && cfg.Rate != "":
		rateStr = cfg.Rate
	default:
		// Seed the default so operators can see and edit it
		if err := settings.SetJSON(ctx, b.settings, settings.KeyBurstConfig, models.BurstConfig{Rate: b.defaultRate}); err != nil {
			b.log.Warn("failed_to_save_default_burst_config",
				zap.String("error", logpkg.SanitizeError(err)),
				zap.String("default_rate", b.defaultRate),
			)
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		b.log.Error("failed_to_parse_burst_rate_using_default",
			zap.String("error", logpkg.SanitizeError(err)),
			zap.String("rate", logpkg.SanitizeString(rateStr, 64)),
		)
		rateStr = b.defaultRate
		rate, err = limiter.NewRateFromFormatted(rateStr)
		if err != nil {
			b.log.Error("failed_to_parse_default_burst_rate", zap.String("default_rate", b.defaultRate))
			return
		}
	}

	instance := limiter.New(b.store, rate)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(func(req *http.Request) string {
			return request.ClientIP(req, b.trustProxy)
		}),
		stdlibmw.WithLimitReachedHandler(respondThrottled),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			b.log.Error("burst_limiter_store_error", zap.String("error", logpkg.SanitizeError(err)))
			respondError(w, http.StatusInternalServerError, "Rate limiter unavailable")
		}),
	)
	h := mw.Handler(b.next)

	b.mu.Lock()
	b.current = h
	b.rate = rateStr
	b.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (b *BurstLimiter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b.mu.RLock()
	h := b.current
	b.mu.RUnlock()
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if b.next != nil {
		b.next.ServeHTTP(w, req)
	}
}

// ThrottledResponse is the burst guard's 429 body. RetryAfter tells it apart from the
// daily quota refusal, which has no retry_after.
type ThrottledResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
}

// respondThrottled reads the window reset the limiter middleware has already set.
func respondThrottled(w http.ResponseWriter, _ *http.Request) {
	retry := int64(1)
	if reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
		retry = max(reset-time.Now().Unix(), 1)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(ThrottledResponse{
		Error:      "Too many upload attempts.",
		Message:    fmt.Sprintf("Please wait %d seconds before trying again.", retry),
		RetryAfter: retry,
	})
}
