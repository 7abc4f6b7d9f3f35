package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoCache() Cache {
	return NewGoCache(LocalConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute})
}

func TestLocalCache(t *testing.T) {
	c := NewLocalCache(LocalConfig{MaxSize: 2, DefaultExpiration: 5 * time.Minute})
	defer c.Close()
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		v, ok := c.Get(ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("per item expiration", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Nanosecond))
		time.Sleep(time.Millisecond)
		_, ok := c.Get(ctx, "short")
		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		_ = c.Set(ctx, "a", []byte("1"), 0)
		_ = c.Set(ctx, "b", []byte("2"), 0)
		_, _ = c.Get(ctx, "a")
		_ = c.Set(ctx, "c", []byte("3"), 0)

		_, okA := c.Get(ctx, "a")
		_, okB := c.Get(ctx, "b")
		_, okC := c.Get(ctx, "c")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.True(t, okC)
	})
}

func TestGoCacheCopiesValue(t *testing.T) {
	c := newGoCache()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "abc", string(v))

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	type character struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	c := newGoCache()
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, c, "character:1", character{ID: 1, Name: "阿月"}, 0))
	got, ok := GetJSON[character](ctx, c, "character:1")
	require.True(t, ok)
	assert.Equal(t, "阿月", got.Name)

	require.NoError(t, c.Set(ctx, "broken", []byte("{"), 0))
	_, ok = GetJSON[character](ctx, c, "broken")
	assert.False(t, ok)
}

func TestLayeredCacheBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	local, remote := newGoCache(), newGoCache()
	layered := NewLayeredCache(local, remote, 0)

	require.NoError(t, remote.Set(ctx, "k", []byte("remote"), 0))
	v, ok := layered.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("remote"), v)
	_, ok = local.Get(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, layered.Delete(ctx, "k"))
	_, ok = local.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = remote.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLayeredCacheCapsLocalTTL(t *testing.T) {
	l := NewLayeredCache(newGoCache(), newGoCache(), time.Second).(*layeredCache)

	assert.Equal(t, time.Second, l.capLocal(0))
	assert.Equal(t, time.Second, l.capLocal(time.Hour))
	assert.Equal(t, 10*time.Millisecond, l.capLocal(10*time.Millisecond))
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(Config{Type: "lru"})
	require.NoError(t, err)
	assert.IsType(t, &lruStore{}, c)

	_, err = NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}
