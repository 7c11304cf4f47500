package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsStableAcrossParamOrder(t *testing.T) {
	a := Key("metrics", map[string]interface{}{"from": "2025-01-01", "region": "Sinop"})
	b := Key("metrics", map[string]interface{}{"region": "Sinop", "from": "2025-01-01"})
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "dashboard:metrics:"), a)
	assert.Len(t, strings.TrimPrefix(a, "dashboard:metrics:"), 8)

	c := Key("metrics", map[string]interface{}{"from": "2025-01-02", "region": "Sinop"})
	assert.NotEqual(t, a, c)
}

type payload struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	var got payload
	ok, err := c.Get(ctx, "dashboard:x", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "dashboard:x", payload{Name: "Sinop", Total: 12.5}, 0))
	ok, err = c.Get(ctx, "dashboard:x", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "Sinop", Total: 12.5}, got)

	require.NoError(t, c.Delete(ctx, "dashboard:x"))
	ok, _ = c.Get(ctx, "dashboard:x", &got)
	assert.False(t, ok)

	st := c.Stats(ctx)
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
	assert.Equal(t, int64(0), st.Keys)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Set(ctx, "dashboard:short", 1, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var n int
	ok, err := c.Get(ctx, "dashboard:short", &n)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheInvalidatePattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	for _, k := range []string{"dashboard:metrics:a", "dashboard:metrics:b", "dashboard:finance_overview:c", "other:key"} {
		require.NoError(t, c.Set(ctx, k, 1, 0))
	}

	n, err := c.InvalidatePattern(ctx, "dashboard:metrics:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.InvalidatePattern(ctx, "dashboard:*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), c.Stats(ctx).Keys)

	_, err = c.InvalidatePattern(ctx, "dashboard:[")
	assert.Error(t, err)
}

func TestNewFallsBackToMemory(t *testing.T) {
	c := New(nil, time.Minute)
	_, ok := c.(*MemoryCache)
	assert.True(t, ok)
}
