package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultConnectAttempts bounds how long startup waits for the broker.
	DefaultConnectAttempts = 10
	initialConnectDelay    = 2 * time.Second
	maxConnectDelay        = 30 * time.Second
)

// ConnectWithRetry dials RabbitMQ, backing off exponentially while the broker starts up.
func ConnectWithRetry(ctx context.Context, amqpURL string, attempts int, log *zap.Logger) (*RabbitMQQueue, error) {
	return retryConnect(ctx, attempts, initialConnectDelay, log, func() (*RabbitMQQueue, error) {
		return NewRabbitMQQueue(amqpURL, log)
	})
}

func retryConnect[T any](ctx context.Context, attempts int, delay time.Duration, log *zap.Logger, dial func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		conn, err := dial()
		if err == nil {
			return conn, nil
		}
		lastErr = err

		wait := delay << uint(attempt)
		if wait > maxConnectDelay || wait <= 0 {
			wait = maxConnectDelay
		}
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", attempts),
			zap.Duration("retry_delay", wait),
			zap.Error(err),
		)
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", attempts, lastErr)
}
