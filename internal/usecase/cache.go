package usecase

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker abstracts the Redis operations used to serialise attempts per subject.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	// Release deletes key only while it still holds holder.
	Release(ctx context.Context, key, holder string) (bool, error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a concrete implementation backed by go-redis.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker constructs a new Redis-backed lock adapter.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// SetNX writes value only if key does not exist yet.
func (c *RedisLocker) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

// Get retrieves the current holder of key.
func (c *RedisLocker) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Release runs a compare-and-delete script so an expired lock that another
// attempt has since taken is left alone.
func (c *RedisLocker) Release(ctx context.Context, key, holder string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, c.client, []string{key}, holder).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
