package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-scheduler/internal/models"
)

// Runs only against a real database: PG_TEST_DSN=postgres://... go test ./internal/postgres
func TestDistanceCache_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)

	cache, err := NewDistanceCache(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM distance_cache WHERE a_lat = -89.5`)
		cache.Close()
	})

	a := models.Coordinates{Lat: -89.5, Lng: 10}
	b := models.Coordinates{Lat: -89.4, Lng: 11}

	require.NoError(t, cache.Put(ctx, &models.DistanceCacheEntry{PointA: b, PointB: a, DistanceKm: 12, DurationHours: 0.2}))

	got, err := cache.Get(ctx, a, b)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.0, got.DistanceKm)
	assert.Equal(t, a, got.PointA)
}

func TestNewDistanceCache_NilDB(t *testing.T) {
	_, err := NewDistanceCache(context.Background(), nil)
	assert.Error(t, err)
}
