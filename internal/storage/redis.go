package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raine/listing-studio/internal/listing"
)

const redisKeyPrefix = "listing-studio:generation:"

// RedisCache implements GenerationCache on Redis so several instances can
// share cached results.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at redisURL (redis:// or rediss://)
// and verifies the connection with PING.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetGeneration returns nil, nil on a cache miss.
func (c *RedisCache) GetGeneration(key string) (*listing.GenerationResult, error) {
	data, err := c.client.Get(context.Background(), redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query redis cache: %w", err)
	}

	var result listing.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached generation: %w", err)
	}
	return &result, nil
}

func (c *RedisCache) SetGeneration(key string, result *listing.GenerationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode generation: %w", err)
	}
	if err := c.client.Set(context.Background(), redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache generation in redis: %w", err)
	}
	return nil
}
