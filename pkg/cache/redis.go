// Package cache wraps the Redis client used for idempotency keys and
// short-lived lookups.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(url, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	return result > 0, err
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// idempotencyTTL bounds how long a side-effect marker survives. Long enough
// to cover any realistic retry storm, short enough that keys do not pile up.
const idempotencyTTL = 7 * 24 * time.Hour

// Guard is a Redis-backed idempotency guard. Acquire wins exactly once per
// key via SET NX.
type Guard struct {
	client *redis.Client
	prefix string
}

func (c *RedisCache) Guard(prefix string) *Guard {
	return &Guard{client: c.client, prefix: prefix}
}

func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+":"+key, 1, idempotencyTTL).Result()
}
