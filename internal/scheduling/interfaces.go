package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driver-scheduler/internal/models"
)

// TieBreakPolicy decides between drivers with equal lowest cost
type TieBreakPolicy string

const (
	TieBreakFirstDriver TieBreakPolicy = "first"        // earliest driver in input order
	TieBreakFewestRides TieBreakPolicy = "fewest_rides" // fewer rides so far, then input order
)

// ParseTieBreak converts a config string into a policy
func ParseTieBreak(s string) (TieBreakPolicy, error) {
	switch TieBreakPolicy(s) {
	case "", TieBreakFirstDriver:
		return TieBreakFirstDriver, nil
	case TieBreakFewestRides:
		return TieBreakFewestRides, nil
	}
	return "", fmt.Errorf("unknown tie-break policy %q", s)
}

const (
	DefaultWorkers     = 4
	DefaultHourlyCost  = 30.0
	DefaultBuffer      = 10 * time.Minute
	DefaultAvgSpeedKmh = 50.0
)

// Config tunes a scheduler. Start from DefaultConfig.
type Config struct {
	Workers     int           // parallel driver evaluations per ride
	HourlyCost  float64       // labor rate per hour
	Buffer      time.Duration // safety margin between consecutive rides
	AvgSpeedKmh float64       // speed for the straight-line pre-filter
	TieBreak    TieBreakPolicy
}

func DefaultConfig() Config {
	return Config{
		Workers:     DefaultWorkers,
		HourlyCost:  DefaultHourlyCost,
		Buffer:      DefaultBuffer,
		AvgSpeedKmh: DefaultAvgSpeedKmh,
		TieBreak:    TieBreakFirstDriver,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.HourlyCost < 0 {
		c.HourlyCost = DefaultHourlyCost
	}
	if c.Buffer < 0 {
		c.Buffer = DefaultBuffer
	}
	if c.AvgSpeedKmh <= 0 {
		c.AvgSpeedKmh = DefaultAvgSpeedKmh
	}
	if c.TieBreak == "" {
		c.TieBreak = TieBreakFirstDriver
	}
	return c
}

// ScheduleRequest contains the input for one scheduling run
type ScheduleRequest struct {
	Drivers      []models.Driver             `json:"drivers"`
	Rides        []models.Ride               `json:"rides"`
	Availability []models.AvailabilityWindow `json:"availability"`
}

// Scheduler assigns rides to drivers
type Scheduler interface {
	Optimize(ctx context.Context, req *ScheduleRequest) (*models.ScheduleResult, error)
}

// ErrNilRequest is returned by Optimize when called without a request
var ErrNilRequest = errors.New("schedule request is nil")

// ValidationError describes a malformed input record
type ValidationError struct {
	Kind     models.DiagnosticKind
	RecordID string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.RecordID, e.Reason)
}

func (e *ValidationError) Diagnostic() models.Diagnostic {
	return models.Diagnostic{Kind: e.Kind, RecordID: e.RecordID, Message: e.Reason}
}
