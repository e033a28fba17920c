package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache backs the Cache with redis so codes survive restarts and are
// shared across replicas. Expiry is delegated to redis TTLs.
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a cache on the given client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func key(email string) string {
	return "otp:" + email
}

func (c *RedisCache) Put(ctx context.Context, email, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, key(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, email string) (string, bool, error) {
	code, err := c.client.Get(ctx, key(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load otp: %w", err)
	}
	return code, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, key(email)).Err(); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
