package uploads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers which Drive id holds the content with a given fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, driveID string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{ids: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[key]
	return id, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key, driveID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[key] = driveID
	return nil
}

const (
	redisPrefix     = "classroom:upload:"
	DefaultCacheTTL = 30 * 24 * time.Hour
)

// RedisCache stores fingerprints in Redis or Dragonfly so repeated runs from
// different machines reuse the same Drive files.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps client. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := c.client.Get(ctx, redisPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading upload cache: %w", err)
	}
	return id, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, driveID string) error {
	if err := c.client.Set(ctx, redisPrefix+key, driveID, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing upload cache: %w", err)
	}
	return nil
}
