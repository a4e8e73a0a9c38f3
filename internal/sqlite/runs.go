package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"driver-scheduler/internal/database"
	"driver-scheduler/internal/models"
)

type runRepository struct {
	store *Store
}

func (r *runRepository) Save(ctx context.Context, result *models.ScheduleResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery := `INSERT INTO schedule_runs (run_id, status, total_cost, provider_calls, started_at, finished_at)
	             VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, runQuery,
		result.RunID, string(result.Status), result.TotalCost, result.ProviderCalls,
		result.StartedAt.UTC(), result.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	assignQuery := `INSERT INTO schedule_assignments (run_id, driver_order, driver_id, route_order, ride_id)
	                VALUES (?, ?, ?, ?, ?)`
	for driverOrder, a := range result.Assignments {
		for routeOrder, rideID := range a.RideIDs {
			if _, err := tx.ExecContext(ctx, assignQuery, result.RunID, driverOrder, a.DriverID, routeOrder, rideID); err != nil {
				return fmt.Errorf("failed to create run assignment: %w", err)
			}
		}
	}

	unassignedQuery := `INSERT INTO schedule_unassigned (run_id, position, ride_id) VALUES (?, ?, ?)`
	for i, rideID := range result.UnassignedRideIDs {
		if _, err := tx.ExecContext(ctx, unassignedQuery, result.RunID, i, rideID); err != nil {
			return fmt.Errorf("failed to create unassigned ride: %w", err)
		}
	}

	diagQuery := `INSERT INTO schedule_diagnostics (run_id, position, kind, record_id, message) VALUES (?, ?, ?, ?, ?)`
	for i, d := range result.Diagnostics {
		if _, err := tx.ExecContext(ctx, diagQuery, result.RunID, i, string(d.Kind), d.RecordID, d.Message); err != nil {
			return fmt.Errorf("failed to create run diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *runRepository) List(ctx context.Context, limit, offset int) ([]database.RunSummary, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var total int
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `SELECT r.run_id, r.status, r.total_cost, r.provider_calls, r.finished_at,
	                 (SELECT COUNT(*) FROM schedule_assignments a WHERE a.run_id = r.run_id),
	                 (SELECT COUNT(*) FROM schedule_unassigned u WHERE u.run_id = r.run_id)
	          FROM schedule_runs r
	          ORDER BY r.finished_at DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.store.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []database.RunSummary
	for rows.Next() {
		var s database.RunSummary
		var status string
		var finishedAt time.Time
		if err := rows.Scan(&s.RunID, &status, &s.TotalCost, &s.ProviderCalls, &finishedAt,
			&s.AssignedRides, &s.UnassignedRides); err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Status = models.RunStatus(status)
		s.FinishedAt = finishedAt.UTC().Format(time.RFC3339)
		runs = append(runs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, total, nil
}

func (r *runRepository) GetByID(ctx context.Context, runID string) (*models.ScheduleResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := &models.ScheduleResult{
		Assignments:       []models.Assignment{},
		UnassignedRideIDs: []string{},
		Diagnostics:       []models.Diagnostic{},
	}
	var status string
	err := r.store.db.QueryRowContext(ctx,
		`SELECT run_id, status, total_cost, provider_calls, started_at, finished_at FROM schedule_runs WHERE run_id = ?`,
		runID,
	).Scan(&result.RunID, &status, &result.TotalCost, &result.ProviderCalls, &result.StartedAt, &result.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	result.Status = models.RunStatus(status)

	assignRows, err := r.store.db.QueryContext(ctx,
		`SELECT driver_id, ride_id FROM schedule_assignments WHERE run_id = ? ORDER BY driver_order, route_order`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run assignments: %w", err)
	}
	defer assignRows.Close()

	for assignRows.Next() {
		var driverID, rideID string
		if err := assignRows.Scan(&driverID, &rideID); err != nil {
			return nil, fmt.Errorf("failed to scan run assignment: %w", err)
		}
		n := len(result.Assignments)
		if n == 0 || result.Assignments[n-1].DriverID != driverID {
			result.Assignments = append(result.Assignments, models.Assignment{DriverID: driverID})
			n++
		}
		result.Assignments[n-1].RideIDs = append(result.Assignments[n-1].RideIDs, rideID)
	}
	if err := assignRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run assignments: %w", err)
	}

	unassignedRows, err := r.store.db.QueryContext(ctx,
		`SELECT ride_id FROM schedule_unassigned WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unassigned rides: %w", err)
	}
	defer unassignedRows.Close()

	for unassignedRows.Next() {
		var rideID string
		if err := unassignedRows.Scan(&rideID); err != nil {
			return nil, fmt.Errorf("failed to scan unassigned ride: %w", err)
		}
		result.UnassignedRideIDs = append(result.UnassignedRideIDs, rideID)
	}
	if err := unassignedRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unassigned rides: %w", err)
	}

	diagRows, err := r.store.db.QueryContext(ctx,
		`SELECT kind, record_id, message FROM schedule_diagnostics WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run diagnostics: %w", err)
	}
	defer diagRows.Close()

	for diagRows.Next() {
		var d models.Diagnostic
		var kind string
		if err := diagRows.Scan(&kind, &d.RecordID, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run diagnostic: %w", err)
		}
		d.Kind = models.DiagnosticKind(kind)
		result.Diagnostics = append(result.Diagnostics, d)
	}
	if err := diagRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run diagnostics: %w", err)
	}

	return result, nil
}
