package rediscache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-scheduler/internal/models"
)

func newTestCache(t *testing.T) (*DistanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := New(context.Background(), mr.Addr(), "", "distance_cache")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestDistanceCache_MissThenHitBothOrders(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	a := models.Coordinates{Lat: 32.0853, Lng: 34.7818}
	b := models.Coordinates{Lat: 31.7683, Lng: 35.2137}

	got, err := cache.Get(ctx, a, b)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Put(ctx, &models.DistanceCacheEntry{PointA: a, PointB: b, DistanceKm: 67.3, DurationHours: 0.9}))

	for _, pair := range [][2]models.Coordinates{{a, b}, {b, a}} {
		got, err := cache.Get(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 67.3, got.DistanceKm)
		assert.Equal(t, 0.9, got.DurationHours)
	}

	assert.True(t, mr.Exists("distance_cache"))
	n, err := cache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, cache.Flush(ctx))
}

func TestDistanceCache_LastWriteWins(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	a := models.Coordinates{Lat: 1, Lng: 1}
	b := models.Coordinates{Lat: 2, Lng: 2}
	require.NoError(t, cache.Put(ctx, &models.DistanceCacheEntry{PointA: a, PointB: b, DistanceKm: 10}))
	require.NoError(t, cache.Put(ctx, &models.DistanceCacheEntry{PointA: b, PointB: a, DistanceKm: 11}))

	got, err := cache.Get(ctx, a, b)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 11.0, got.DistanceKm)

	n, err := cache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDistanceCache_CorruptValue(t *testing.T) {
	cache, mr := newTestCache(t)
	a := models.Coordinates{Lat: 1, Lng: 1}
	b := models.Coordinates{Lat: 2, Lng: 2}
	mr.HSet("distance_cache", models.SegmentKey(a, b), "{oops")

	_, err := cache.Get(context.Background(), a, b)
	assert.Error(t, err)
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr, "", "distance_cache")
	assert.Error(t, err)
}
