package rediscli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewClient creates a Redis client with retry logic, mirroring the durable-store
// connection helper in pkg/database.
// Retries with exponential backoff: 1s, 2s, 4s, 8s, 16s (total ~31s before failure).
func NewClient(ctx context.Context, opts *redis.Options, maxRetries int) (*redis.Client, error) {
	var client *redis.Client
	var err error

	attempts := maxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		client = redis.NewClient(opts)
		if pingErr := client.Ping(ctx).Err(); pingErr == nil {
			log.Info().Msg("coordinator connection established")
			return client, nil
		} else {
			_ = client.Close()
			err = fmt.Errorf("ping failed: %w", pingErr)
		}

		backoff := time.Duration(1<<attempt) * time.Second
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Dur("next_retry_in", backoff).
			Msg("coordinator connection failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("failed to connect to coordinator after %d attempts: %w", attempts, err)
}

// Pinger adapts *redis.Client to the handler.Pinger interface (Ping returning
// a plain error rather than a *redis.StatusCmd).
type Pinger struct {
	Client *redis.Client
}

// Ping pings the coordinator and returns the error, discarding the command result.
func (p Pinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
