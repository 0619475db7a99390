// Package cache opens the Redis or Dragonfly connection that remembers which
// local files already live in Drive. The upload cache keyed by content
// fingerprint is shared by every run pointed at the same server, so a second
// machine syncing the same plan skips uploads the first one made.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-classroom/internal/platform/config"
	"github.com/p-n-ai/pai-classroom/internal/uploads"
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 3 * time.Second
)

// Cache is an open connection holding upload fingerprints.
type Cache struct {
	Client *redis.Client
	ttl    time.Duration
}

// ParseURL turns a redis:// or rediss:// URL into client options.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("upload cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid upload cache URL: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	return opts, nil
}

// Open connects to the server in c and checks it answers. A non-positive TTL
// falls back to uploads.DefaultCacheTTL.
func Open(ctx context.Context, c config.CacheConfig) (*Cache, error) {
	opts, err := ParseURL(c.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("reaching upload cache at %s: %w", opts.Addr, err)
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = uploads.DefaultCacheTTL
	}
	slog.Info("upload cache connected", "addr", opts.Addr, "db", opts.DB, "ttl", ttl)
	return &Cache{Client: client, ttl: ttl}, nil
}

// Uploads returns the fingerprint cache the uploader reads and writes.
func (c *Cache) Uploads() *uploads.RedisCache {
	return uploads.NewRedisCache(c.Client, c.ttl)
}

// Close shuts down the connection.
func (c *Cache) Close() error {
	return c.Client.Close()
}
