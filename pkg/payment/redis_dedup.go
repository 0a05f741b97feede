package payment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisDedup struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisDedupCache returns a DedupCache backed by Redis. It cuts the
// database round-trip for the common case of immediate redelivery;
// correctness never depends on it, so entries expire after ttl and
// errors fail open. Keys are written only after processing commits:
// caching on first sight would swallow the provider's retry of a
// delivery that failed mid-flight.
func NewRedisDedupCache(client redis.UniversalClient, ttl time.Duration) DedupCache {
	if client == nil {
		panic("payment: redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisDedup{client: client, ttl: ttl, prefix: "webhook:event:"}
}

func (c *redisDedup) Seen(ctx context.Context, providerEventID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+providerEventID).Result()
	if err != nil {
		// Fail open: the database uniqueness constraint still guards.
		return false, err
	}
	return n > 0, nil
}

func (c *redisDedup) MarkProcessed(ctx context.Context, providerEventID string) error {
	return c.client.Set(ctx, c.prefix+providerEventID, 1, c.ttl).Err()
}
