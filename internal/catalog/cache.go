package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedLookup is a read-through cache in front of another Lookup. Catalog
// data is already eventually consistent relative to the order store, so a
// short TTL does not weaken any guarantee checkout relies on. Negative
// results are not cached; an unknown product must stay a hard failure.
type CachedLookup struct {
	next   Lookup
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	return &CachedLookup{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedLookup) Resolve(ctx context.Context, productID string) (*Product, error) {
	key := "catalog:product:" + productID

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var product Product
		if err := json.Unmarshal([]byte(cached), &product); err == nil {
			return &product, nil
		}
		c.logger.Warn("dropping malformed catalog cache entry", "key", key)
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		// Cache outage degrades to direct lookups.
		c.logger.Warn("catalog cache read failed", "error", err, "key", key)
	}

	product, err := c.next.Resolve(ctx, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", "error", err, "key", key)
		}
	}

	return product, nil
}
