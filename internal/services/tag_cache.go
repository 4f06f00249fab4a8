package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangang/projecthub/internal/config"
	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const popularTagsCacheKey = "cache:tags:popular"

// TagCache holds the unfiltered popular-tags listing.
type TagCache interface {
	GetPopular(ctx context.Context) ([]models.Tag, bool)
	SetPopular(ctx context.Context, tags []models.Tag)
	InvalidatePopular(ctx context.Context)
}

// NoopTagCache is used when Redis is disabled.
type NoopTagCache struct{}

func (NoopTagCache) GetPopular(context.Context) ([]models.Tag, bool) { return nil, false }
func (NoopTagCache) SetPopular(context.Context, []models.Tag)        {}
func (NoopTagCache) InvalidatePopular(context.Context)               {}

// RedisTagCache stores the listing as JSON. Cache errors are logged and
// treated as misses; the database stays authoritative.
type RedisTagCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTagCache connects to Redis and verifies the connection.
func NewRedisTagCache(cfg *config.RedisConfig) (*RedisTagCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTagCache{client: client, ttl: ttl}, nil
}

// InitTagCache returns a Redis-backed cache when enabled and reachable,
// otherwise a no-op cache.
func InitTagCache(cfg *config.RedisConfig) TagCache {
	if !cfg.Enabled {
		return NoopTagCache{}
	}
	cache, err := NewRedisTagCache(cfg)
	if err != nil {
		logger.Warnf("[TagCache] Redis unavailable, caching disabled: %v", err)
		return NoopTagCache{}
	}
	logger.Infof("[TagCache] Redis cache enabled at %s", cfg.Addr)
	return cache
}

func (c *RedisTagCache) GetPopular(ctx context.Context) ([]models.Tag, bool) {
	data, err := c.client.Get(ctx, popularTagsCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("[TagCache] get failed: %v", err)
		}
		return nil, false
	}
	var tags []models.Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, false
	}
	return tags, true
}

func (c *RedisTagCache) SetPopular(ctx context.Context, tags []models.Tag) {
	data, err := json.Marshal(tags)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, popularTagsCacheKey, data, c.ttl).Err(); err != nil {
		logger.Warnf("[TagCache] set failed: %v", err)
	}
}

func (c *RedisTagCache) InvalidatePopular(ctx context.Context) {
	if err := c.client.Del(ctx, popularTagsCacheKey).Err(); err != nil {
		logger.Warnf("[TagCache] invalidate failed: %v", err)
	}
}

func (c *RedisTagCache) Close() error {
	return c.client.Close()
}
