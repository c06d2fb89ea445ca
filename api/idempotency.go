package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores applied idempotency keys in Redis so a retried
// command is acknowledged without being applied twice.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("dedupe:%s:%s", userID, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

// Remove deletes a recorded key so the client may retry the command.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// AddMany records every key in one round trip and reports, per key, whether
// it was new. On error the slice still holds the answers that arrived so the
// caller can release them.
func (r *RedisDeduper) AddMany(ctx context.Context, userID string, keys []string) ([]bool, error) {
	added := make([]bool, len(keys))
	if len(keys) == 0 {
		return added, nil
	}
	pipe := r.client.Pipeline()
	setnx := make([]*redis.BoolCmd, len(keys))
	for i, k := range keys {
		setnx[i] = pipe.SetNX(ctx, r.key(userID, k), 1, r.ttl)
	}
	_, execErr := pipe.Exec(ctx)
	for i, cmd := range setnx {
		if cmd.Err() == nil {
			added[i] = cmd.Val()
		}
	}
	if execErr != nil {
		return added, fmt.Errorf("record idempotency keys: %w", execErr)
	}
	return added, nil
}

// Release removes the keys that AddMany reported as newly added. Used when a
// whole batch fails before any command was applied.
func (r *RedisDeduper) Release(ctx context.Context, userID string, keys []string, added []bool) error {
	var del []string
	for i, k := range keys {
		if i < len(added) && added[i] {
			del = append(del, r.key(userID, k))
		}
	}
	if len(del) == 0 {
		return nil
	}
	return r.client.Del(ctx, del...).Err()
}
