// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/feature/candles/usecase"
)

// CachingPartitionRepository decorates a PartitionRepository with Redis caching.
// It implements the decorator pattern, transparently adding caching without
// modifying the underlying repository.
type CachingPartitionRepository struct {
	inner     usecase.PartitionRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	boundary  time.Duration
	now       func() time.Time
}

var _ usecase.PartitionRepository = (*CachingPartitionRepository)(nil)

// NewCachingPartitionRepository decorates a PartitionRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCachingPartitionRepository(rdb *redis.Client, ttl time.Duration, inner usecase.PartitionRepository, namespace string) *CachingPartitionRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &CachingPartitionRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		now:       time.Now,
	}
}

// SetRefreshBoundary caps cache entries so they expire at the next step boundary,
// which is when the scheduler may rewrite partitions.
func (c *CachingPartitionRepository) SetRefreshBoundary(step time.Duration) {
	c.boundary = step
}

// Save writes the partition and invalidates its cache entries.
func (c *CachingPartitionRepository) Save(ctx context.Context, key entity.PartitionKey, rows []entity.Row) error {
	if err := c.inner.Save(ctx, key, rows); err != nil {
		return err
	}
	if c.rdb == nil {
		return nil
	}
	_ = c.deleteByPattern(ctx, c.cacheKeyPrefix(key.Ticker, key.Interval)+"*") // Best effort: don't fail if cache deletion fails
	return nil
}

// Load retrieves a partition, checking cache first then falling back to the inner store.
// Missing partitions are not cached.
func (c *CachingPartitionRepository) Load(ctx context.Context, key entity.PartitionKey) ([]entity.Row, bool, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.Load(ctx, key)
	}

	ck := c.cacheKey(key)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, ck).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Row
		if err := json.Unmarshal(b, &out); err == nil {
			return out, true, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, ck).Err()
	}

	// 2) Fallback to the partition store
	out, found, err := c.inner.Load(ctx, key)
	if err != nil || !found {
		return out, found, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, ck, b, c.entryTTL()).Err()
	}

	return out, true, nil
}

func (c *CachingPartitionRepository) entryTTL() time.Duration {
	if c.boundary <= 0 {
		return c.ttl
	}
	if d := TimeUntilNextBoundary(c.now(), c.boundary); d < c.ttl {
		return d
	}
	return c.ttl
}

// cacheKey generates a cache key for a specific partition.
func (c *CachingPartitionRepository) cacheKey(key entity.PartitionKey) string {
	loc := "default"
	if key.Path != "" {
		loc = key.Path
	}
	return c.cacheKeyPrefix(key.Ticker, key.Interval) + safe(loc)
}

// cacheKeyPrefix generates a prefix for invalidating related cache entries.
func (c *CachingPartitionRepository) cacheKeyPrefix(ticker, interval string) string {
	return fmt.Sprintf("%s:%s:%s:",
		c.namespace,
		safe(strings.ToUpper(ticker)),
		safe(strings.ToLower(interval)),
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingPartitionRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	// Simple escaping of characters that are problematic for Redis keys
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
