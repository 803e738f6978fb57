package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReplayCache shares the replay window across node replicas. SET NX
// with a TTL equal to the envelope's remaining validity gives an atomic
// test-and-record; expired keys self-clean.
type RedisReplayCache struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisReplayCache creates a cache backed by the given Redis address.
func NewRedisReplayCache(addr, password string, db int) *RedisReplayCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisReplayCache{client: rdb, clock: time.Now}
}

// NewRedisReplayCacheFromClient wraps an existing client, for tests.
func NewRedisReplayCacheFromClient(client *redis.Client) *RedisReplayCache {
	return &RedisReplayCache{client: client, clock: time.Now}
}

func (c *RedisReplayCache) Record(ctx context.Context, senderID, nonce string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(c.clock().UTC())
	if ttl <= 0 {
		// Already expired; the verifier rejects these before consulting us,
		// but guard against a zero TTL turning SET NX into a permanent key.
		ttl = time.Second
	}
	key := fmt.Sprintf("replay:%s:%s", senderID, nonce)
	fresh, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return fresh, nil
}
