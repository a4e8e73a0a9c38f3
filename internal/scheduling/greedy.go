package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"driver-scheduler/internal/distance"
	"driver-scheduler/internal/models"
	"driver-scheduler/internal/observability"
)

type greedyScheduler struct {
	provider distance.RouteMetricsProvider
	cost     *CostModel
	cfg      Config
}

// candidate is the outcome of evaluating one driver for one ride
type candidate struct {
	feasible bool
	cost     models.CostBreakdown
}

// NewGreedyScheduler creates a scheduler that assigns rides in chronological
// order, each to the cheapest feasible driver at that point
func NewGreedyScheduler(provider distance.RouteMetricsProvider, cfg Config) Scheduler {
	cfg = cfg.withDefaults()
	return &greedyScheduler{
		provider: provider,
		cost:     NewCostModel(provider, cfg.HourlyCost),
		cfg:      cfg,
	}
}

func (s *greedyScheduler) Optimize(ctx context.Context, req *ScheduleRequest) (*models.ScheduleResult, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	startedAt := time.Now()
	runID := uuid.NewString()
	var calls atomic.Int64
	ctx = distance.WithCallCounter(ctx, &calls)

	log.Printf("[SCHEDULER] Starting run: run_id=%s drivers=%d rides=%d windows=%d workers=%d tie_break=%s",
		runID, len(req.Drivers), len(req.Rides), len(req.Availability), s.cfg.Workers, s.cfg.TieBreak)

	result := &models.ScheduleResult{
		RunID:             runID,
		Status:            models.RunStatusComplete,
		Assignments:       []models.Assignment{},
		UnassignedRideIDs: []string{},
		Diagnostics:       []models.Diagnostic{},
		StartedAt:         startedAt,
	}

	drivers := s.validDrivers(req.Drivers, result)
	rides := s.validRides(req.Rides, result)

	availability, invalidWindows := NewAvailability(req.Availability)
	for _, verr := range invalidWindows {
		log.Printf("[SCHEDULER] Skipping availability: run_id=%s %v", runID, verr)
		result.Diagnostics = append(result.Diagnostics, verr.Diagnostic())
	}
	feasibility := NewFeasibilityEvaluator(s.provider, availability, s.cfg)

	// Chronological, input order on ties
	sort.SliceStable(rides, func(i, j int) bool {
		if rides[i].date != rides[j].date {
			return rides[i].date < rides[j].date
		}
		return rides[i].start < rides[j].start
	})

	schedules := make([][]*models.Ride, len(drivers))
	assignmentIndex := make(map[int]int)

	for i, span := range rides {
		if ctx.Err() != nil {
			s.cancelRemaining(result, rides[i:], ctx.Err())
			break
		}

		candidates := s.evaluateDrivers(ctx, feasibility, drivers, schedules, span.ride)
		if ctx.Err() != nil {
			s.cancelRemaining(result, rides[i:], ctx.Err())
			break
		}

		best := s.pickBest(candidates, schedules)
		if best < 0 {
			log.Printf("[SCHEDULER] No suitable driver: run_id=%s ride=%s", runID, span.ride.ID)
			result.UnassignedRideIDs = append(result.UnassignedRideIDs, span.ride.ID)
			continue
		}

		driverID := drivers[best].DriverID
		idx, ok := assignmentIndex[best]
		if !ok {
			result.Assignments = append(result.Assignments, models.Assignment{DriverID: driverID, RideIDs: []string{}})
			idx = len(result.Assignments) - 1
			assignmentIndex[best] = idx
		}
		result.Assignments[idx].RideIDs = append(result.Assignments[idx].RideIDs, span.ride.ID)
		schedules[best] = append(schedules[best], span.ride)
		result.TotalCost += candidates[best].cost.TotalCost

		log.Printf("[SCHEDULER] Assigned: run_id=%s ride=%s driver=%s cost=%.2f", runID, span.ride.ID, driverID, candidates[best].cost.TotalCost)
	}

	result.FinishedAt = time.Now()
	result.ProviderCalls = calls.Load()

	assigned := result.AssignedRideCount()
	observability.RidesAssignedTotal.Add(float64(assigned))
	observability.RidesUnassignedTotal.Add(float64(len(result.UnassignedRideIDs)))
	observability.RunsTotal.WithLabelValues(string(result.Status)).Inc()
	observability.RunDuration.Observe(result.FinishedAt.Sub(startedAt).Seconds())

	log.Printf("[SCHEDULER] Run finished: run_id=%s status=%s assigned=%d unassigned=%d total_cost=%.2f provider_calls=%d duration=%s",
		runID, result.Status, assigned, len(result.UnassignedRideIDs), result.TotalCost, result.ProviderCalls,
		result.FinishedAt.Sub(startedAt).Round(time.Millisecond))

	return result, nil
}

func (s *greedyScheduler) validDrivers(input []models.Driver, result *models.ScheduleResult) []*models.Driver {
	drivers := make([]*models.Driver, 0, len(input))
	seen := make(map[string]bool, len(input))

	for i := range input {
		d := &input[i]
		err := validateDriver(d)
		if err == nil && seen[d.DriverID] {
			err = &ValidationError{Kind: models.DiagnosticInvalidDriver, RecordID: d.DriverID, Reason: "duplicate driverId"}
		}
		if err != nil {
			s.addDiagnostic(result, err)
			continue
		}
		seen[d.DriverID] = true
		drivers = append(drivers, d)
	}
	return drivers
}

// validRides parses rides; malformed ones go straight to unassigned.
// A ride without an _id is reported as #<input index>.
func (s *greedyScheduler) validRides(input []models.Ride, result *models.ScheduleResult) []*rideSpan {
	rides := make([]*rideSpan, 0, len(input))
	seen := make(map[string]bool, len(input))

	for i := range input {
		r := &input[i]
		if r.ID != "" && seen[r.ID] {
			// The id is already accounted for by its first occurrence
			s.addDiagnostic(result, &ValidationError{Kind: models.DiagnosticInvalidRide, RecordID: r.ID, Reason: "duplicate _id"})
			continue
		}
		seen[r.ID] = true

		span, err := parseRide(r)
		if err != nil {
			id := r.ID
			if id == "" {
				id = fmt.Sprintf("#%d", i)
				var verr *ValidationError
				if errors.As(err, &verr) {
					verr.RecordID = id
				}
			}
			s.addDiagnostic(result, err)
			result.UnassignedRideIDs = append(result.UnassignedRideIDs, id)
			continue
		}
		rides = append(rides, span)
	}
	return rides
}

func (s *greedyScheduler) addDiagnostic(result *models.ScheduleResult, err error) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		verr = &ValidationError{Kind: models.DiagnosticInvalidRide, Reason: err.Error()}
	}
	log.Printf("[SCHEDULER] Skipping record: run_id=%s %v", result.RunID, verr)
	result.Diagnostics = append(result.Diagnostics, verr.Diagnostic())
}

// evaluateDrivers checks every driver for ride in parallel. Results are indexed
// by driver position so the pick does not depend on completion order.
func (s *greedyScheduler) evaluateDrivers(ctx context.Context, feasibility *FeasibilityEvaluator, drivers []*models.Driver, schedules [][]*models.Ride, ride *models.Ride) []candidate {
	results := make([]candidate, len(drivers))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	for i, driver := range drivers {
		var previous *models.Ride
		startLocation := driver.GetCoords()
		if n := len(schedules[i]); n > 0 {
			previous = schedules[i][n-1]
			startLocation = previous.EndPointCoords
		}

		g.Go(func() error {
			ok, err := feasibility.CanAssign(ctx, driver, ride, previous, startLocation)
			if err != nil {
				log.Printf("[SCHEDULER] Feasibility failed: ride=%s driver=%s err=%v", ride.ID, driver.DriverID, err)
				return nil
			}
			if !ok {
				return nil
			}

			cost, err := s.cost.EstimateCost(ctx, driver, ride, startLocation)
			if err != nil {
				log.Printf("[SCHEDULER] Cost evaluation failed: ride=%s driver=%s err=%v", ride.ID, driver.DriverID, err)
				return nil
			}

			results[i] = candidate{feasible: true, cost: *cost}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// pickBest returns the index of the winning driver, or -1
func (s *greedyScheduler) pickBest(candidates []candidate, schedules [][]*models.Ride) int {
	best := -1
	for i, c := range candidates {
		if !c.feasible {
			continue
		}
		if best < 0 || c.cost.TotalCost < candidates[best].cost.TotalCost {
			best = i
			continue
		}
		if s.cfg.TieBreak == TieBreakFewestRides &&
			c.cost.TotalCost == candidates[best].cost.TotalCost &&
			len(schedules[i]) < len(schedules[best]) {
			best = i
		}
	}
	return best
}

func (s *greedyScheduler) cancelRemaining(result *models.ScheduleResult, remaining []*rideSpan, cause error) {
	result.Status = models.RunStatusCancelled
	for _, span := range remaining {
		result.UnassignedRideIDs = append(result.UnassignedRideIDs, span.ride.ID)
	}
	result.Diagnostics = append(result.Diagnostics, models.Diagnostic{
		Kind:     models.DiagnosticCancelled,
		RecordID: remaining[0].ride.ID,
		Message:  fmt.Sprintf("run stopped before %d ride(s) were scheduled: %v", len(remaining), cause),
	})
	log.Printf("[SCHEDULER] Run cancelled: run_id=%s remaining=%d err=%v", result.RunID, len(remaining), cause)
}
