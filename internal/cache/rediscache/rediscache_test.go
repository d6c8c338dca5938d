package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/integrations/courier"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

var (
	_ cache.BytesCache    = (*RedisCache)(nil)
	_ courier.RateLimiter = (*RateLimiter)(nil)
)

func TestRedisCache_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr()).WithPrefix("test:")
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, cache.ShipmentViewKey(1))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, cache.ShipmentViewKey(1), []byte("v"), time.Minute))
	require.True(t, mr.Exists("test:shipment:1:view"))
	b, ok, err := c.Get(ctx, "shipment:1:view")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, cache.ShipmentViewKey(1))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.False(t, mr.Exists("test:k"))
}

func TestRedisCache_Errors(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Error(t, c.Set(context.Background(), "k", nil, time.Second))
	require.Error(t, c.Ping(context.Background()))
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr()).WithPrefix("test:")
	t.Cleanup(func() { _ = rl.Close() })

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:cdek", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	mr.FastForward(30 * time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:cdek", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:cdek", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	// окно не продлевается повторными вызовами: через минуту от первого оно закрыто
	mr.FastForward(31 * time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:cdek", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
