package posts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	feedCacheKey  = "posts:feed"
	postCachePfx  = "posts:post:"
	cacheTTL      = 5 * time.Minute
	cachePingWait = 5 * time.Second
)

// Cache is an optional Redis cache for the feed and single posts. When Redis
// is unreachable at startup, caching is disabled and every method becomes a
// no-op; the store stays the source of truth either way.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewCache connects to Redis. A failed connection disables caching rather
// than failing the service.
func NewCache(addr, password string, db int, logger *slog.Logger) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cachePingWait)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis connection failed, caching disabled", "addr", addr, "error", err)
		rdb = nil
	} else {
		logger.Info("Redis cache connected", "addr", addr)
	}

	return &Cache{rdb: rdb, logger: logger}
}

// Disabled reports whether the cache is a no-op.
func (c *Cache) Disabled() bool { return c == nil || c.rdb == nil }

// GetFeed returns the cached feed, or ok=false on miss.
func (c *Cache) GetFeed(ctx context.Context) ([]Post, bool) {
	if c.Disabled() {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, feedCacheKey).Result()
	if err != nil {
		return nil, false
	}
	var feed []Post
	if err := json.Unmarshal([]byte(data), &feed); err != nil {
		return nil, false
	}
	return feed, true
}

// SetFeed caches the feed.
func (c *Cache) SetFeed(ctx context.Context, feed []Post) {
	if c.Disabled() {
		return
	}
	data, err := json.Marshal(feed)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, feedCacheKey, data, cacheTTL).Err(); err != nil {
		c.logger.Debug("cache feed failed", "error", err)
	}
}

// GetPost returns a cached post, or ok=false on miss.
func (c *Cache) GetPost(ctx context.Context, id string) (*Post, bool) {
	if c.Disabled() {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, postCachePfx+id).Result()
	if err != nil {
		return nil, false
	}
	var p Post
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, false
	}
	return &p, true
}

// SetPost caches a single post.
func (c *Cache) SetPost(ctx context.Context, p Post) {
	if c.Disabled() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, postCachePfx+p.ID, data, cacheTTL).Err(); err != nil {
		c.logger.Debug("cache post failed", "post_id", p.ID, "error", err)
	}
}

// Invalidate drops the cached feed and, when id is non-empty, the cached
// post. Called after any write that changes a post or its counters.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	if c.Disabled() {
		return
	}
	keys := []string{feedCacheKey}
	if id != "" {
		keys = append(keys, postCachePfx+id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Debug("cache invalidate failed", "error", err)
	}
}
