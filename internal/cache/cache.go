// Package cache provides a Redis-backed cache-aside layer for field definitions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace-service/internal/domain"
)

// Cache stores JSON documents in Redis under a common prefix.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  Stats
}

// Stats counts cache traffic.
type Stats struct {
	Hits    atomic.Uint64
	Misses  atomic.Uint64
	Sets    atomic.Uint64
	Deletes atomic.Uint64
	Errors  atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Deletes uint64  `json:"deletes"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a cache on top of client.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Get decodes the value stored at key into dest. found is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.stats.Misses.Add(1)
			return false, nil
		}
		c.stats.Errors.Add(1)
		return false, fmt.Errorf("cache get error: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.stats.Errors.Add(1)
		return false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	c.stats.Hits.Add(1)
	return true, nil
}

// Set stores value at key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache set error: %w", err)
	}
	c.stats.Sets.Add(1)
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache delete error: %w", err)
	}
	c.stats.Deletes.Add(uint64(len(keys)))
	return nil
}

// GetStats returns the current counters.
func (c *Cache) GetStats() StatsSnapshot {
	hits := c.stats.Hits.Load()
	misses := c.stats.Misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return StatsSnapshot{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.stats.Sets.Load(),
		Deletes: c.stats.Deletes.Load(),
		Errors:  c.stats.Errors.Load(),
		HitRate: hitRate,
	}
}

// Ping checks if the Redis connection is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// FieldDefinitions adapts Cache to fields.DefinitionCache. Redis failures are
// logged and treated as misses; the database stays authoritative.
type FieldDefinitions struct {
	cache *Cache
}

// NewFieldDefinitions wraps c.
func NewFieldDefinitions(c *Cache) *FieldDefinitions {
	return &FieldDefinitions{cache: c}
}

func fieldKey(id string) string      { return "field:" + id }
func modelKey(modelID string) string { return "model-fields:" + modelID }

func (f *FieldDefinitions) GetField(ctx context.Context, id string) (*domain.FieldDefinition, bool) {
	var field domain.FieldDefinition
	found, err := f.cache.Get(ctx, fieldKey(id), &field)
	if err != nil {
		slog.WarnContext(ctx, "field definition cache read failed", "id", id, "err", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &field, true
}

func (f *FieldDefinitions) SetField(ctx context.Context, field *domain.FieldDefinition) {
	if err := f.cache.Set(ctx, fieldKey(field.ID), field); err != nil {
		slog.WarnContext(ctx, "field definition cache write failed", "id", field.ID, "err", err)
	}
}

func (f *FieldDefinitions) DeleteField(ctx context.Context, id string) {
	if err := f.cache.Delete(ctx, fieldKey(id)); err != nil {
		slog.WarnContext(ctx, "field definition cache delete failed", "id", id, "err", err)
	}
}

func (f *FieldDefinitions) GetModelFields(ctx context.Context, modelID string) ([]domain.FieldDefinition, bool) {
	var fields []domain.FieldDefinition
	found, err := f.cache.Get(ctx, modelKey(modelID), &fields)
	if err != nil {
		slog.WarnContext(ctx, "model fields cache read failed", "model_id", modelID, "err", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if fields == nil {
		fields = []domain.FieldDefinition{}
	}
	return fields, true
}

func (f *FieldDefinitions) SetModelFields(ctx context.Context, modelID string, fields []domain.FieldDefinition) {
	if err := f.cache.Set(ctx, modelKey(modelID), fields); err != nil {
		slog.WarnContext(ctx, "model fields cache write failed", "model_id", modelID, "err", err)
	}
}

func (f *FieldDefinitions) DeleteModelFields(ctx context.Context, modelID string) {
	if err := f.cache.Delete(ctx, modelKey(modelID)); err != nil {
		slog.WarnContext(ctx, "model fields cache delete failed", "model_id", modelID, "err", err)
	}
}
