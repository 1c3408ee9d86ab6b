package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache mirrors task statuses for cheap polling reads.
// Implementations must be safe for concurrent use.
type StatusCache interface {
	SetTaskStatus(ctx context.Context, taskID, status string, ttl time.Duration) error
	GetTaskStatus(ctx context.Context, taskID string) (string, bool, error)
	DeleteTaskStatus(ctx context.Context, taskID string) error
}

// RedisCache implements StatusCache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetTaskStatus(ctx context.Context, taskID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, TaskStatusKey(taskID), status, ttl).Err()
}

func (c *RedisCache) GetTaskStatus(ctx context.Context, taskID string) (string, bool, error) {
	val, err := c.client.Get(ctx, TaskStatusKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) DeleteTaskStatus(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, TaskStatusKey(taskID)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// TaskStatusKey is the Redis key holding a task's status.
func TaskStatusKey(taskID string) string {
	return "promoreel:task:" + taskID + ":status"
}

// Noop is a StatusCache that stores nothing; used when REDIS_URL is unset.
type Noop struct{}

func (Noop) SetTaskStatus(context.Context, string, string, time.Duration) error { return nil }
func (Noop) GetTaskStatus(context.Context, string) (string, bool, error)        { return "", false, nil }
func (Noop) DeleteTaskStatus(context.Context, string) error                     { return nil }

var (
	_ StatusCache = (*RedisCache)(nil)
	_ StatusCache = Noop{}
)
