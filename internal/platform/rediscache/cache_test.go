package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Users int            `json:"users"`
	Tasks map[string]int `json:"tasks"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "carouselmaker"), mr
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	var got entry
	found, err := c.Get(ctx, "stats", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := entry{Users: 7, Tasks: map[string]int{"pending": 2}}
	require.NoError(t, c.Set(ctx, "stats", want, time.Minute))
	assert.True(t, mr.Exists("carouselmaker:stats"))

	found, err = c.Get(ctx, "stats", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "stats", &got)
	require.NoError(t, err)
	assert.False(t, found, "value expires after its ttl")
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	var v int
	found, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheDecodeError(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("carouselmaker:bad", "{not json"))

	var v entry
	_, err := c.Get(context.Background(), "bad", &v)
	assert.Error(t, err)
}
