// Package settings is the key-value persistence used for the rate-limit table and
// runtime-tunable configuration (CORS, burst rate). Keys are namespaced per deployment.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeyRateLimitTable = "rate_limit_submissions"
	KeyCorsConfig     = "cors_config"
	KeyBurstConfig    = "burst_rate"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("settings store closed")

// Store persists opaque values under string keys.
// Get returns (nil, nil) when the key has never been written.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NamespacedKey joins namespace and key the same way for every backend.
func NamespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// GetJSON decodes the value under key into dst. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
