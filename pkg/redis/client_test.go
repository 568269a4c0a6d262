package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return FromRedis(raw), mr
}

func TestSetGetDelRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	mr.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "k")
	require.True(t, errors.Is(err, ErrNil), "expected expired key, got %v", err)

	require.NoError(t, client.Set(ctx, "k", "v", 0))
	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNil)
}

func TestSetNXOnlyFirstWins(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	ok, err := client.SetNX(ctx, client.LockKey("job"), "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, client.LockKey("job"), "b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeysAreNamespaced(t *testing.T) {
	client := &Client{}
	require.Equal(t, "codf:cache:role:user-1", client.CacheKey("role", "user-1"))
	require.Equal(t, "codf:lock:financial-backfill", client.LockKey("financial-backfill"))
	require.Equal(t, "codf", client.buildKey())
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.Get(context.Background(), "x")
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3, PoolSize: 7})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/2"})
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", opts.Addr)
	require.Equal(t, 2, opts.DB)
}
