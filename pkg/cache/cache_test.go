package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scored struct {
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", scored{Score: 0.7, Source: "llm"}, time.Minute))
	var got scored
	require.NoError(t, mc.Get(ctx, "a", &got))
	assert.Equal(t, scored{Score: 0.7, Source: "llm"}, got)

	require.NoError(t, mc.Set(ctx, "s", "plain", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)

	ok, err := mc.Exists(ctx, "missing", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mc.Delete(ctx, "a"))
	assert.ErrorIs(t, mc.Get(ctx, "a", &got), ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	ok, _ := mc.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCache_PromotesFromL2(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2)
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "k", scored{Score: -0.4}, time.Hour))

	var got scored
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, -0.4, got.Score)

	// served from L1 after L2 loses it
	require.NoError(t, l2.Delete(ctx, "k"))
	got = scored{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, -0.4, got.Score)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestLayeredCache_WriteThrough(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	require.NoError(t, lc.Set(ctx, "k", "v", time.Hour))
	ok, err := l2.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "p:1", GenerateKey("p", "1"))
	assert.Equal(t, "regime:NVDA:2023-01-02", GenerateKeyWithParams("regime", "NVDA", "2023-01-02"))
	assert.Len(t, HashKey("x"), 64)
}
