package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SettingsRepository stores namespaced key-value settings in Postgres.
type SettingsRepository struct {
	db        *DB
	namespace string
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB, namespace string) *SettingsRepository {
	return &SettingsRepository{db: db, namespace: namespace}
}

// EnsureSchema creates the settings table if it does not exist.
func (r *SettingsRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			namespace  TEXT NOT NULL,
			name       TEXT NOT NULL,
			value      BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (namespace, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure settings schema: %w", err)
	}
	return nil
}

// Get retrieves a setting. Returns nil, nil when absent.
func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE namespace = $1 AND name = $2
	`, r.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts a setting.
func (r *SettingsRepository) Set(ctx context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting name cannot be empty")
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (namespace, name, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, r.namespace, key, value, now, now)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
