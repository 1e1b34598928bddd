package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCacheFromClient(client, "finagent")
}

func TestMemoryCacheTypes(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "s", "hello", 0))
	require.NoError(t, mc.Set(ctx, "r", record{ID: "a", Score: 1.5}, 0))

	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "hello", s)

	var r record
	require.NoError(t, mc.Get(ctx, "r", &r))
	assert.Equal(t, record{ID: "a", Score: 1.5}, r)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", "x", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "short", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Get(ctx, "a", &s))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCachePatternAndLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, GenerateKey("agent", "a"), "1", 0))
	require.NoError(t, mc.Set(ctx, GenerateKey("agent", "b"), "2", 0))
	require.NoError(t, mc.Set(ctx, "other", "3", 0))
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("agent:")))

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "agent:a", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "other", &s))

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, rc := newRedis(t)

	require.NoError(t, rc.Set(ctx, "agent:1", record{ID: "1", Score: 2}, time.Minute))
	assert.True(t, mr.Exists("finagent:agent:1"))

	var r record
	require.NoError(t, rc.Get(ctx, "agent:1", &r))
	assert.Equal(t, "1", r.ID)

	var s string
	assert.ErrorIs(t, rc.Get(ctx, "agent:2", &s), ErrCacheMiss)

	require.NoError(t, rc.Set(ctx, "agent:2", "raw", 0))
	require.NoError(t, rc.DeleteByPattern(ctx, BuildPattern("agent:")))
	assert.False(t, mr.Exists("finagent:agent:1"))
	assert.False(t, mr.Exists("finagent:agent:2"))

	ok, err := rc.TryLock(ctx, "train:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rc.TryLock(ctx, "train:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = rc.TryLock(ctx, "train:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, rc := newRedis(t)
	lc := NewLayeredCache(rc, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	// Written by another process, straight into Redis.
	require.NoError(t, mr.Set("finagent:agent:x", `{"id":"x","score":3}`))

	var r record
	require.NoError(t, lc.Get(ctx, "agent:x", &r))
	assert.Equal(t, 3.0, r.Score)

	// L1 now serves it even after L2 loses the key.
	mr.Del("finagent:agent:x")
	var again record
	require.NoError(t, lc.Get(ctx, "agent:x", &again))
	assert.Equal(t, r, again)

	var s string
	require.NoError(t, lc.Get(ctx, "agent:x", &s))
	assert.JSONEq(t, `{"id":"x","score":3}`, s)

	require.NoError(t, lc.Delete(ctx, "agent:x"))
	assert.ErrorIs(t, lc.Get(ctx, "agent:x", &r), ErrCacheMiss)
}
