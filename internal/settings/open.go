package settings

import (
	"context"
	"fmt"

	"github.com/benvon/voicenote-intake/internal/config"
	"github.com/benvon/voicenote-intake/internal/database"
	"github.com/redis/go-redis/v9"
)

// Backend is an opened settings store plus its lifecycle hooks.
type Backend struct {
	Store Store
	// Redis is set when the backend is Redis so other components can share the client.
	Redis *redis.Client
	close func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Ping checks the backend when it is remote; in-memory backends are always healthy.
func (b *Backend) Ping(ctx context.Context) error {
	if p, ok := b.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Open builds the settings backend selected by cfg.SettingsBackend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.SettingsBackend {
	case config.SettingsBackendRedis:
		rs, err := NewRedisStore(cfg.RedisURL, cfg.SettingsNamespace)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: rs, Redis: rs.Client(), close: rs.Close}, nil
	case config.SettingsBackendPostgres:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo := database.NewSettingsRepository(db, cfg.SettingsNamespace)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Backend{Store: repo, close: db.Close}, nil
	case config.SettingsBackendMemory:
		ms := NewMemoryStore()
		return &Backend{Store: ms, close: ms.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported settings backend: %s", cfg.SettingsBackend)
	}
}
