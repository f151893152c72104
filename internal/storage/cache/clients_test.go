package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-registration/internal/storage/cache"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

func TestRedisClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client, err := cache.NewRedisClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var miss dispatch.DeviceSet
	assert.ErrorIs(t, client.Get(ctx, "push:tokens:nobody", &miss), cache.ErrCacheMiss)

	in := dispatch.DeviceSet{UserID: "w1", FCMTokens: []string{"t1"}}
	require.NoError(t, client.Set(ctx, "push:tokens:w1", in, time.Minute))

	var out dispatch.DeviceSet
	require.NoError(t, client.Get(ctx, "push:tokens:w1", &out))
	assert.Equal(t, in, out)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, client.Get(ctx, "push:tokens:w1", &out), cache.ErrCacheMiss)

	require.NoError(t, client.Set(ctx, "push:tokens:w1", in, time.Minute))
	require.NoError(t, client.Del(ctx, "push:tokens:w1"))
	assert.False(t, mr.Exists("push:tokens:w1"))
}

func TestNewRedisClient_FailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewRedisClient(addr, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	client := cache.NewMemoryClient(time.Minute, time.Minute)

	var out dispatch.DeviceSet
	assert.ErrorIs(t, client.Get(ctx, "k", &out), cache.ErrCacheMiss)

	in := dispatch.DeviceSet{UserID: "w1", FCMTokens: []string{"t1"}}
	require.NoError(t, client.Set(ctx, "k", in, time.Minute))
	require.NoError(t, client.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	// Mutating the caller's copy does not leak into the cache.
	out.FCMTokens[0] = "mutated"
	var again dispatch.DeviceSet
	require.NoError(t, client.Get(ctx, "k", &again))
	assert.Equal(t, "t1", again.FCMTokens[0])

	require.NoError(t, client.Set(ctx, "short", in, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	assert.ErrorIs(t, client.Get(ctx, "short", &out), cache.ErrCacheMiss)

	require.NoError(t, client.Del(ctx, "k"))
	assert.ErrorIs(t, client.Get(ctx, "k", &out), cache.ErrCacheMiss)
}
