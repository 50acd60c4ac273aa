// Package quota enforces the per-client daily submission limit.
//
// The whole table lives under one settings key and is read-modify-written on every
// check and every increment. There is no locking: two concurrent submissions from the
// same client can both pass CheckQuota and both be recorded, so the limit can be
// under-enforced by one. That is acceptable for low-volume listener feedback.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/settings"
	"go.uber.org/zap"
)

// DefaultMaxSubmissionsPerDay is used when a non-positive limit is configured.
const DefaultMaxSubmissionsPerDay = 5

const dateLayout = "2006-01-02"

// ErrUnavailable wraps every persistence failure. Callers must treat it as a rejection.
var ErrUnavailable = errors.New("quota store unavailable")

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
}

// Entry is a live table row, for operator tooling.
type Entry struct {
	ClientID string `json:"client_id"`
	Count    int    `json:"count"`
	Date     string `json:"date"`
}

// Limiter interprets the persisted rate-limit table.
type Limiter struct {
	store  settings.Store
	key    string
	limit  int
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used for repair warnings.
func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.logger = log }
}

// WithKey overrides the settings key holding the table.
func WithKey(key string) Option {
	return func(l *Limiter) { l.key = key }
}

// New creates a Limiter over store allowing limit submissions per client per UTC day.
func New(store settings.Store, limit int, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultMaxSubmissionsPerDay
	}
	l := &Limiter{
		store:  store,
		key:    settings.KeyRateLimitTable,
		limit:  limit,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured daily limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// CheckQuota decides whether clientID may submit again today. Expired records for all
// clients are dropped and the cleaned table is written back whatever the outcome.
func (l *Limiter) CheckQuota(ctx context.Context, clientID string) (Decision, error) {
	rejected := Decision{Allowed: false, Limit: l.limit}

	table, err := l.load(ctx)
	if err != nil {
		return rejected, err
	}

	table.Prune(l.today())

	decision := Decision{Allowed: true, Limit: l.limit}
	if rec, ok := table[clientID]; ok {
		decision.Count = rec.Count
		if rec.Count >= l.limit {
			decision.Allowed = false
		}
	}

	if err := l.save(ctx, table); err != nil {
		rejected.Count = decision.Count
		return rejected, err
	}

	return decision, nil
}

// RecordSubmission counts one accepted submission for clientID today.
func (l *Limiter) RecordSubmission(ctx context.Context, clientID string) error {
	table, err := l.load(ctx)
	if err != nil {
		return err
	}

	today := l.today()
	if rec, ok := table[clientID]; ok && rec.Date == today {
		rec.Count++
		table[clientID] = rec
	} else {
		table[clientID] = models.RateLimitRecord{Count: 1, Date: today}
	}

	return l.save(ctx, table)
}

// Entries lists today's records, busiest first.
func (l *Limiter) Entries(ctx context.Context) ([]Entry, error) {
	table, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	today := l.today()
	entries := make([]Entry, 0, len(table))
	for client, rec := range table {
		if rec.Date != today {
			continue
		}
		entries = append(entries, Entry{ClientID: client, Count: rec.Count, Date: rec.Date})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].ClientID < entries[j].ClientID
	})
	return entries, nil
}

// Reset forgets clientID's record. It reports whether a record existed.
func (l *Limiter) Reset(ctx context.Context, clientID string) (bool, error) {
	table, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := table[clientID]; !ok {
		return false, nil
	}
	delete(table, clientID)
	return true, l.save(ctx, table)
}

// ResetAll clears the whole table.
func (l *Limiter) ResetAll(ctx context.Context) error {
	return l.save(ctx, models.RateLimitTable{})
}

func (l *Limiter) today() string {
	return l.now().UTC().Format(dateLayout)
}

func (l *Limiter) load(ctx context.Context) (models.RateLimitTable, error) {
	raw, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("%w: read table: %w", ErrUnavailable, err)
	}
	table := models.RateLimitTable{}
	if len(raw) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(raw, &table); err != nil {
		// Undecodable data would otherwise block every client forever; the next save repairs it.
		l.logger.Warn("rate_limit_table_corrupt_resetting",
			zap.String("key", l.key),
			zap.String("error", logger.SanitizeError(err)),
		)
		return models.RateLimitTable{}, nil
	}
	if table == nil {
		table = models.RateLimitTable{}
	}
	return table, nil
}

func (l *Limiter) save(ctx context.Context, table models.RateLimitTable) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("%w: encode table: %w", ErrUnavailable, err)
	}
	if err := l.store.Set(ctx, l.key, raw); err != nil {
		return fmt.Errorf("%w: write table: %w", ErrUnavailable, err)
	}
	return nil
}
