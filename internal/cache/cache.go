// Package cache provides a Redis-backed cache for fleet analytics
// snapshots. The cache is optional: when disabled every lookup is a miss
// and writes are no-ops, so callers never branch on it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/metrics"
	"github.com/savegress/fleetsense/pkg/models"
)

// ErrMiss is returned when the key is absent or caching is disabled
var ErrMiss = errors.New("cache: miss")

type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// New connects to Redis when caching is enabled. A connection failure
// disables the cache rather than failing startup.
func New(ctx context.Context, cfg config.CacheConfig) *Cache {
	if !cfg.Enabled {
		return &Cache{}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return &Cache{}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return &Cache{}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl, enabled: true}
}

// Enabled reports whether a Redis backend is connected
func (c *Cache) Enabled() bool { return c.enabled }

func snapshotKey(fleetID string) string {
	return fmt.Sprintf("fleetsense:analytics:%s", fleetID)
}

// GetSnapshot returns the cached snapshot for a fleet, or ErrMiss
func (c *Cache) GetSnapshot(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error) {
	if !c.enabled {
		return nil, ErrMiss
	}

	data, err := c.client.Get(ctx, snapshotKey(fleetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Add(1)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	snapshot := &models.FleetAnalyticsSnapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	metrics.CacheHits.Add(1)
	return snapshot, nil
}

// SetSnapshot stores the snapshot under the fleet key with the cache TTL
func (c *Cache) SetSnapshot(ctx context.Context, snapshot *models.FleetAnalyticsSnapshot) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(snapshot.FleetID), data, c.ttl).Err()
}

// InvalidateSnapshot drops the cached snapshot for a fleet
func (c *Cache) InvalidateSnapshot(ctx context.Context, fleetID string) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(fleetID)).Err()
}

// Close releases the Redis connection
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
