//go:build integration

package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, rdb.Ping(ctx).Err(), "redis is not reachable")
	return rdb
}

func TestRedisKV_SessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	rdb := newRedisClient(t)
	require.NoError(t, rdb.FlushDB(ctx).Err())

	prefix := "device:test:"
	require.NoError(t, NewStore(NewRedisKV(rdb, prefix, time.Hour)).Save(ctx, testSnapshot()))

	// new store on the same keys, as after a restart
	st := NewStore(NewRedisKV(rdb, prefix, time.Hour))
	got, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testSnapshot(), got)

	ttl, err := rdb.TTL(ctx, prefix+KeyGame).Result()
	require.NoError(t, err)
	require.Positive(t, ttl)

	require.NoError(t, st.Clear(ctx))
	n, err := rdb.Exists(ctx, prefix+KeyGame, prefix+KeyPlayer, prefix+KeyView, prefix+KeyHole).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}
