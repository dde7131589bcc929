// Package cache provides the Redis-backed response cache used by the AI
// processor to short-circuit repeat questions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

var (
	// ErrCacheMiss is returned when a cache key is not found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheInvalid is returned when cached data fails to unmarshal.
	ErrCacheInvalid = errors.New("invalid cached data")
)

// Config configures cache behavior.
type Config struct {
	Enabled    bool
	DefaultTTL time.Duration
	KeyPrefix  string
}

// DefaultConfig returns sensible defaults for the response cache.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: 5 * time.Minute,
		KeyPrefix:  "cache:",
	}
}

// RedisCache implements a generic Redis-backed key/value cache with JSON
// helpers, hit/miss counters, and a prefix-scoped clear.
type RedisCache struct {
	client *redis.Client
	config Config
	logger observability.Logger

	hits   int64
	misses int64
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(client *redis.Client, config Config, logger observability.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		config: config,
		logger: logger.WithPrefix("redis-cache"),
	}
}

// Get retrieves a value from the cache.
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !rc.config.Enabled {
		return nil, ErrCacheMiss
	}

	fullKey := rc.makeKey(key)

	val, err := rc.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		rc.misses++
		return nil, ErrCacheMiss
	}
	if err != nil {
		rc.logger.Error("cache get error", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	rc.hits++
	return val, nil
}

// Set stores a value in the cache.
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !rc.config.Enabled {
		return nil
	}

	fullKey := rc.makeKey(key)
	if ttl == 0 {
		ttl = rc.config.DefaultTTL
	}

	if err := rc.client.Set(ctx, fullKey, value, ttl).Err(); err != nil {
		rc.logger.Error("cache set error", map[string]interface{}{"key": key, "error": err.Error()})
		return fmt.Errorf("cache set error: %w", err)
	}

	return nil
}

// Delete removes a value from the cache.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if !rc.config.Enabled {
		return nil
	}

	if err := rc.client.Del(ctx, rc.makeKey(key)).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}

	return nil
}

// Exists checks if a key exists in the cache.
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	if !rc.config.Enabled {
		return false, nil
	}

	count, err := rc.client.Exists(ctx, rc.makeKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}

	return count > 0, nil
}

// GetJSON retrieves and unmarshals a JSON value from the cache.
func (rc *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := rc.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheInvalid, err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in the cache.
func (rc *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	return rc.Set(ctx, key, data, ttl)
}

// Clear removes all cache entries under the configured prefix.
func (rc *RedisCache) Clear(ctx context.Context) error {
	if !rc.config.Enabled {
		return nil
	}

	pattern := rc.config.KeyPrefix + "*"
	iter := rc.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			rc.logger.Error("cache clear error", map[string]interface{}{"key": iter.Val(), "error": err.Error()})
		}
	}

	return iter.Err()
}

// Stats reports hit/miss counters for the cache metrics endpoint.
func (rc *RedisCache) Stats() map[string]interface{} {
	total := rc.hits + rc.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(rc.hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":     rc.hits,
		"misses":   rc.misses,
		"total":    total,
		"hit_rate": hitRate,
	}
}

func (rc *RedisCache) makeKey(key string) string {
	return rc.config.KeyPrefix + key
}
