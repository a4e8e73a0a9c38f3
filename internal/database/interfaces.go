package database

import (
	"context"

	"driver-scheduler/internal/models"
)

// DistanceCacheRepository handles distance cache persistence.
// Lookups are direction-independent: Get(a, b) finds an entry stored as (b, a).
type DistanceCacheRepository interface {
	Get(ctx context.Context, a, b models.Coordinates) (*models.DistanceCacheEntry, error)
	Put(ctx context.Context, entry *models.DistanceCacheEntry) error
	Flush(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// RunRepository stores the history of scheduling runs
type RunRepository interface {
	Save(ctx context.Context, result *models.ScheduleResult) error
	List(ctx context.Context, limit, offset int) ([]RunSummary, int, error)
	GetByID(ctx context.Context, runID string) (*models.ScheduleResult, error)
}

// RunSummary is a compact listing row for a stored run
type RunSummary struct {
	RunID           string           `json:"runId"`
	Status          models.RunStatus `json:"status"`
	TotalCost       float64          `json:"totalCost"`
	AssignedRides   int              `json:"assignedRides"`
	UnassignedRides int              `json:"unassignedRides"`
	ProviderCalls   int64            `json:"providerCalls"`
	FinishedAt      string           `json:"finishedAt"`
}
