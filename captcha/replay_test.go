package captcha

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReplayGuardConsumesOnce(t *testing.T) {
	g := NewMemoryReplayGuard(10)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	ok, err := g.Consume(ctx, "a", exp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Consume(ctx, "a", exp)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Consume(ctx, "b", exp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, g.Len())
}

func TestMemoryReplayGuardExpired(t *testing.T) {
	g := NewMemoryReplayGuard(10)
	ok, err := g.Consume(context.Background(), "a", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, g.Len())
}

func TestMemoryReplayGuardSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewMemoryReplayGuard(2)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		ok, err := g.Consume(ctx, id, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// full of live ids
	_, err := g.Consume(ctx, "c", now.Add(time.Minute))
	assert.Error(t, err)

	now = now.Add(2 * time.Minute)
	ok, err := g.Consume(ctx, "c", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, g.Len())

	now = now.Add(2 * time.Minute)
	g.Sweep()
	assert.Zero(t, g.Len())
}

func TestMemoryReplayGuardConcurrent(t *testing.T) {
	g := NewMemoryReplayGuard(10)
	exp := time.Now().Add(time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.Consume(context.Background(), "same", exp); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisReplayGuard(t *testing.T) {
	mr, client := newMiniRedis(t)
	g := NewRedisReplayGuard(client)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	ok, err := g.Consume(ctx, "jti-1", exp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Consume(ctx, "jti-1", exp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, mr.Exists(RedisReplayGuardPrefix+"jti-1"))
	ttl := mr.TTL(RedisReplayGuardPrefix + "jti-1")
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(RedisReplayGuardPrefix+"jti-1"))
}

func TestRedisReplayGuardExpiredToken(t *testing.T) {
	mr, client := newMiniRedis(t)
	g := NewRedisReplayGuard(client)

	ok, err := g.Consume(context.Background(), "old", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(RedisReplayGuardPrefix+"old"))
}

func TestRedisReplayGuardUnavailable(t *testing.T) {
	mr, client := newMiniRedis(t)
	g := NewRedisReplayGuard(client)
	mr.Close()

	ok, err := g.Consume(context.Background(), "jti", time.Now().Add(time.Minute))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNoReplayGuard(t *testing.T) {
	var g ReplayGuard = noReplayGuard{}
	for i := 0; i < 3; i++ {
		ok, err := g.Consume(context.Background(), "x", time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
