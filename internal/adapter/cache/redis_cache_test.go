package cache

import (
	"context"
	"testing"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCacheWithClient(client, "gemini-2.5-flash-lite", time.Hour), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	want := &domain.Summary{English: "A GNN paper.", Japanese: "GNN の論文。"}
	require.NoError(t, c.Set(ctx, "2401.00001", want))

	key := "arxiv-digest:summary:gemini-2.5-flash-lite:2401.00001"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	got, ok, err := c.Get(ctx, "2401.00001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	got, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedisCache_Expired(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "x", &domain.Summary{English: "e"}))
	mr.FastForward(2 * time.Hour)

	_, ok, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ModelIsolation(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "x", &domain.Summary{English: "e"}))

	other := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "gpt-4o-mini", 0)
	_, ok, err := other.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, DefaultTTL, other.ttl)
}

func TestRedisCache_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mr *miniredis.Miniredis)
	}{
		{
			name: "缓存内容损坏",
			setup: func(mr *miniredis.Miniredis) {
				_ = mr.Set("arxiv-digest:summary:gemini-2.5-flash-lite:x", "not json")
			},
		},
		{
			name:  "redis 不可用",
			setup: func(mr *miniredis.Miniredis) { mr.Close() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mr := newTestCache(t)
			tt.setup(mr)

			_, ok, err := c.Get(context.Background(), "x")
			assert.False(t, ok)
			assert.True(t, common.HasCode(err, common.ErrCodeCache))
		})
	}
}

func TestNewRedisCache(t *testing.T) {
	_, err := NewRedisCache("", "m", 0)
	assert.True(t, common.HasCode(err, common.ErrCodeConfiguration))

	mr := miniredis.RunT(t)
	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		c, err := NewRedisCache(addr, "m", 0)
		require.NoError(t, err)
		assert.NoError(t, c.Ping(context.Background()))
		_ = c.Close()
	}
}
