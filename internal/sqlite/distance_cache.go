package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"driver-scheduler/internal/models"
)

type distanceCacheRepository struct {
	store *Store
}

func (r *distanceCacheRepository) Get(ctx context.Context, a, b models.Coordinates) (*models.DistanceCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT a_lat, a_lng, b_lat, b_lng, distance_km, duration_hours
	          FROM distance_cache
	          WHERE a_lat = ? AND a_lng = ? AND b_lat = ? AND b_lng = ?`

	first, second := models.CanonicalPair(a, b)

	var entry models.DistanceCacheEntry
	err := r.store.db.QueryRowContext(ctx, query, first.Lat, first.Lng, second.Lat, second.Lng).Scan(
		&entry.PointA.Lat, &entry.PointA.Lng,
		&entry.PointB.Lat, &entry.PointB.Lng,
		&entry.DistanceKm, &entry.DurationHours,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distance cache entry: %w", err)
	}

	return &entry, nil
}

func (r *distanceCacheRepository) Put(ctx context.Context, entry *models.DistanceCacheEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := `INSERT OR REPLACE INTO distance_cache
	          (a_lat, a_lng, b_lat, b_lng, distance_km, duration_hours, cached_at)
	          VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

	first, second := models.CanonicalPair(entry.PointA, entry.PointB)

	_, err := r.store.db.ExecContext(ctx, query,
		first.Lat, first.Lng, second.Lat, second.Lng,
		entry.DistanceKm, entry.DurationHours,
	)
	if err != nil {
		return fmt.Errorf("failed to set distance cache entry: %w", err)
	}

	return nil
}

// Flush is a no-op: every Put is already committed
func (r *distanceCacheRepository) Flush(ctx context.Context) error {
	return nil
}

func (r *distanceCacheRepository) Len(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var n int
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM distance_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count distance cache entries: %w", err)
	}
	return n, nil
}

// Close is a no-op; the owning Store closes the connection
func (r *distanceCacheRepository) Close() error {
	return nil
}
