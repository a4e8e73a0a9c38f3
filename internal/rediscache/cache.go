package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"driver-scheduler/internal/models"
)

// DistanceCache stores route metrics in a single Redis hash.
// The field is models.SegmentKey, so both orderings of a pair share it.
type DistanceCache struct {
	client *redis.Client
	key    string
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, addr, password, key string) (*DistanceCache, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &DistanceCache{client: c, key: key}, nil
}

func (r *DistanceCache) Get(ctx context.Context, a, b models.Coordinates) (*models.DistanceCacheEntry, error) {
	raw, err := r.client.HGet(ctx, r.key, models.SegmentKey(a, b)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distance cache entry: %w", err)
	}

	var entry models.DistanceCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode distance cache entry: %w", err)
	}
	return &entry, nil
}

func (r *DistanceCache) Put(ctx context.Context, entry *models.DistanceCacheEntry) error {
	first, second := models.CanonicalPair(entry.PointA, entry.PointB)
	stored := *entry
	stored.PointA, stored.PointB = first, second

	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode distance cache entry: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, models.SegmentKey(first, second), raw).Err(); err != nil {
		return fmt.Errorf("failed to set distance cache entry: %w", err)
	}
	return nil
}

// Flush is a no-op: Redis owns persistence
func (r *DistanceCache) Flush(ctx context.Context) error {
	return nil
}

func (r *DistanceCache) Len(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count distance cache entries: %w", err)
	}
	return int(n), nil
}

func (r *DistanceCache) Close() error {
	return r.client.Close()
}
