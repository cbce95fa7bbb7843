// Package redis provides Redis connection utilities.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config contains Redis connection configuration.
type Config struct {
	URL             string
	ConnectTimeout  time.Duration
	ConnectAttempts int
}

// Connect establishes a Redis client connection with retry logic.
// The URL uses the redis:// scheme, e.g. redis://localhost:6379/0.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			slog.Info("connected to redis", "attempts", attempt)
			return client, nil
		}

		_ = client.Close()
		lastErr = err

		if attempt < attempts {
			backoff := calcBackoff(attempt)
			slog.Warn("failed to ping redis, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("connect to redis after %d attempts: %w", attempts, lastErr)
}

// calcBackoff returns exponential backoff duration capped at 16 seconds.
func calcBackoff(attempt int) time.Duration {
	backoff := time.Duration(1<<(attempt-1)) * time.Second
	if backoff > 16*time.Second {
		backoff = 16 * time.Second
	}
	return backoff
}
