package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"driver-scheduler/internal/database"

	_ "modernc.org/sqlite"
)

const (
	DefaultDBFileName = database.SQLiteDBFileName
	schemaVersion     = 1
)

// Store is a SQLite-based store for the distance cache and run history
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	distanceCacheRepo database.DistanceCacheRepository
	runRepo           database.RunRepository
}

// New creates a new SQLite store at the specified path
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	log.Printf("[SQLITE] Opening database at: %s", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.distanceCacheRepo = &distanceCacheRepository{store: store}
	store.runRepo = &runRepository{store: store}

	return store, nil
}

// GetDBPath returns the current database file path
func (s *Store) GetDBPath() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist, create everything
		return s.createSchema()
	}

	if version < schemaVersion {
		if err := s.runMigrations(version); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	INSERT INTO schema_version (version) VALUES (1);

	-- Points are stored rounded and in canonical order, so (a,b) and (b,a) share a row
	CREATE TABLE IF NOT EXISTS distance_cache (
		a_lat REAL NOT NULL,
		a_lng REAL NOT NULL,
		b_lat REAL NOT NULL,
		b_lng REAL NOT NULL,
		distance_km REAL NOT NULL,
		duration_hours REAL NOT NULL,
		cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (a_lat, a_lng, b_lat, b_lng)
	);

	CREATE TABLE IF NOT EXISTS schedule_runs (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		total_cost REAL NOT NULL DEFAULT 0,
		provider_calls INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedule_assignments (
		run_id TEXT NOT NULL,
		driver_order INTEGER NOT NULL,
		driver_id TEXT NOT NULL,
		route_order INTEGER NOT NULL,
		ride_id TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES schedule_runs(run_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS schedule_unassigned (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		ride_id TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES schedule_runs(run_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS schedule_diagnostics (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		record_id TEXT NOT NULL,
		message TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES schedule_runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_schedule_runs_finished ON schedule_runs(finished_at DESC);
	CREATE INDEX IF NOT EXISTS idx_schedule_assignments_run ON schedule_assignments(run_id);
	CREATE INDEX IF NOT EXISTS idx_schedule_unassigned_run ON schedule_unassigned(run_id);
	CREATE INDEX IF NOT EXISTS idx_schedule_diagnostics_run ON schedule_diagnostics(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Printf("[SQLITE] Schema initialized (version %d)", schemaVersion)
	return nil
}

func (s *Store) runMigrations(fromVersion int) error {
	log.Printf("[SQLITE] Migrating schema from version %d to %d", fromVersion, schemaVersion)
	_, err := s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		// Checkpoint WAL before closing
		s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DistanceCache() database.DistanceCacheRepository { return s.distanceCacheRepo }
func (s *Store) Runs() database.RunRepository                    { return s.runRepo }
