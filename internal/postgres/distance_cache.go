package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"driver-scheduler/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS distance_cache (
	a_lat DOUBLE PRECISION NOT NULL,
	a_lng DOUBLE PRECISION NOT NULL,
	b_lat DOUBLE PRECISION NOT NULL,
	b_lng DOUBLE PRECISION NOT NULL,
	distance_km DOUBLE PRECISION NOT NULL,
	duration_hours DOUBLE PRECISION NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (a_lat, a_lng, b_lat, b_lng)
);
`

// Open connects to Postgres through the pgx stdlib driver
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}

	return db, nil
}

// DistanceCache is a Postgres-backed DistanceCacheRepository.
// Rows hold the canonical (rounded, ordered) pair.
type DistanceCache struct {
	DB *sql.DB
}

// NewDistanceCache creates the table if needed
func NewDistanceCache(ctx context.Context, db *sql.DB) (*DistanceCache, error) {
	if db == nil {
		return nil, errors.New("distance cache: db is nil")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("distance cache: create table: %w", err)
	}
	return &DistanceCache{DB: db}, nil
}

func (s *DistanceCache) Get(ctx context.Context, a, b models.Coordinates) (*models.DistanceCacheEntry, error) {
	first, second := models.CanonicalPair(a, b)

	q := `
	SELECT a_lat, a_lng, b_lat, b_lng, distance_km, duration_hours
	FROM distance_cache
	WHERE a_lat = $1 AND a_lng = $2 AND b_lat = $3 AND b_lng = $4;
	`

	var entry models.DistanceCacheEntry
	err := s.DB.QueryRowContext(ctx, q, first.Lat, first.Lng, second.Lat, second.Lng).Scan(
		&entry.PointA.Lat, &entry.PointA.Lng,
		&entry.PointB.Lat, &entry.PointB.Lng,
		&entry.DistanceKm, &entry.DurationHours,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get distance cache: %w", err)
	}
	return &entry, nil
}

func (s *DistanceCache) Put(ctx context.Context, entry *models.DistanceCacheEntry) error {
	first, second := models.CanonicalPair(entry.PointA, entry.PointB)

	q := `
	INSERT INTO distance_cache (a_lat, a_lng, b_lat, b_lng, distance_km, duration_hours)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (a_lat, a_lng, b_lat, b_lng) DO UPDATE
	SET distance_km = EXCLUDED.distance_km,
		duration_hours = EXCLUDED.duration_hours,
		cached_at = now();
	`
	if _, err := s.DB.ExecContext(ctx, q,
		first.Lat, first.Lng, second.Lat, second.Lng,
		entry.DistanceKm, entry.DurationHours,
	); err != nil {
		return fmt.Errorf("insert distance cache: %w", err)
	}
	return nil
}

// Flush is a no-op: every Put is committed
func (s *DistanceCache) Flush(ctx context.Context) error {
	return nil
}

func (s *DistanceCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM distance_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count distance cache: %w", err)
	}
	return n, nil
}

func (s *DistanceCache) Close() error {
	return s.DB.Close()
}
