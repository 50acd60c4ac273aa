package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps settings as plain string values in Redis.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, namespace: namespace}, nil
}

// Get reads key; a missing key yields (nil, nil).
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, NamespacedKey(r.namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if errors.Is(err, redis.ErrClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set writes key without expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	err := r.client.Set(ctx, NamespacedKey(r.namespace, key), value, 0).Err()
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client exposes the underlying client so the burst limiter can share the connection.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
