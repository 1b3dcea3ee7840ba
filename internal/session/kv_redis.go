package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV keeps session keys in Redis under a per-device prefix. A zero ttl
// keeps them until cleared.
type RedisKV struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisKV(rdb *redis.Client, prefix string, ttl time.Duration) *RedisKV {
	return &RedisKV{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (kv *RedisKV) key(k string) string {
	return kv.prefix + k
}

func (kv *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := kv.rdb.Get(ctx, kv.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (kv *RedisKV) Set(ctx context.Context, key, value string) error {
	return kv.rdb.Set(ctx, kv.key(key), value, kv.ttl).Err()
}

func (kv *RedisKV) Remove(ctx context.Context, key string) error {
	return kv.rdb.Del(ctx, kv.key(key)).Err()
}
