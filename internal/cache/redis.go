package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 500 * time.Millisecond

// RedisCache stores JSON-encoded values under a key prefix. Entries expire
// through Redis TTLs; a failed command behaves like a miss.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	ctx    context.Context
}

func NewRedisCache[T any](addr, prefix string, ttl time.Duration) *RedisCache[T] {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache[T]{
		client: rdb,
		prefix: prefix,
		ttl:    ttl,
		ctx:    context.Background(),
	}
}

func (r *RedisCache[T]) key(k string) string { return r.prefix + k }

func (r *RedisCache[T]) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, redisOpTimeout)
}

func (r *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := r.opContext()
	defer cancel()

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Redis cache get failed", "key", key, "error", err)
		}
		return zero, false
	}
	var data T
	if err := json.Unmarshal(val, &data); err != nil {
		slog.Warn("Redis cache entry undecodable", "key", key, "error", err)
		return zero, false
	}
	return data, true
}

func (r *RedisCache[T]) Set(key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Redis cache entry unencodable", "key", key, "error", err)
		return
	}
	ctx, cancel := r.opContext()
	defer cancel()
	if err := r.client.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		slog.Warn("Redis cache set failed", "key", key, "error", err)
	}
}

func (r *RedisCache[T]) Delete(key string) {
	ctx, cancel := r.opContext()
	defer cancel()
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		slog.Warn("Redis cache delete failed", "key", key, "error", err)
	}
}

// Size counts the keys under the prefix.
func (r *RedisCache[T]) Size() int {
	ctx, cancel := r.opContext()
	defer cancel()

	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Redis cache scan failed", "error", err)
	}
	return n
}

// Ping reports whether Redis is reachable.
func (r *RedisCache[T]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache[T]) Close() error {
	return r.client.Close()
}
