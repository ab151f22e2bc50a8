package didresolver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ringhub:did:"

// RedisCache stores resolved documents in redis so a fleet of hub instances
// shares one resolution cache. Failures degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a redis-backed document cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, didStr string) (*Document, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+didStr).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache read failed", zap.String("did", didStr), zap.Error(err))
		}
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.String("did", didStr), zap.Error(err))
		return nil, false
	}
	return &doc, true
}

func (c *RedisCache) Set(ctx context.Context, didStr string, doc *Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn("redis cache encode failed", zap.String("did", didStr), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+didStr, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache write failed", zap.String("did", didStr), zap.Error(err))
	}
}

func (c *RedisCache) Purge(ctx context.Context, didStr string) {
	if err := c.client.Del(ctx, redisKeyPrefix+didStr).Err(); err != nil {
		c.logger.Warn("redis cache purge failed", zap.String("did", didStr), zap.Error(err))
	}
}
