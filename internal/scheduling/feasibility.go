package scheduling

import (
	"context"
	"fmt"

	"driver-scheduler/internal/distance"
	"driver-scheduler/internal/geo"
	"driver-scheduler/internal/models"
)

// FeasibilityEvaluator decides whether a driver can take a ride.
// Checks run cheapest first: capacity, availability, then reachability.
type FeasibilityEvaluator struct {
	provider      distance.RouteMetricsProvider
	availability  *Availability
	bufferMinutes float64
	avgSpeedKmh   float64
}

func NewFeasibilityEvaluator(provider distance.RouteMetricsProvider, availability *Availability, cfg Config) *FeasibilityEvaluator {
	cfg = cfg.withDefaults()
	if availability == nil {
		availability = &Availability{byDriver: map[string][]window{}}
	}
	return &FeasibilityEvaluator{
		provider:      provider,
		availability:  availability,
		bufferMinutes: cfg.Buffer.Minutes(),
		avgSpeedKmh:   cfg.AvgSpeedKmh,
	}
}

// CanAssign reports whether driver can take ride after previous (nil for none).
// A provider failure yields false with the error.
func (e *FeasibilityEvaluator) CanAssign(ctx context.Context, driver *models.Driver, ride, previous *models.Ride, startLocation models.Coordinates) (bool, error) {
	if driver.NumberOfSeats < ride.NumberOfSeats {
		return false, nil
	}

	span, err := parseRide(ride)
	if err != nil {
		return false, err
	}
	if !e.availability.Covers(driver.DriverID, span.date, span.start, span.end) {
		return false, nil
	}

	return e.CanReachOnTime(ctx, previous, ride)
}

// CanReachOnTime reports whether a driver finishing previous can start next in time
func (e *FeasibilityEvaluator) CanReachOnTime(ctx context.Context, previous, next *models.Ride) (bool, error) {
	if previous == nil {
		return true, nil
	}

	prev, err := parseRide(previous)
	if err != nil {
		return false, err
	}
	nxt, err := parseRide(next)
	if err != nil {
		return false, err
	}

	if prev.date != nxt.date {
		return true, nil
	}
	if nxt.start <= prev.end {
		return false, nil
	}

	prevEnd := float64(prev.end)
	nextStart := float64(nxt.start)

	estimate := geo.EstimateTravelMinutes(geo.HaversineKm(previous.EndPointCoords, next.StartPointCoords), e.avgSpeedKmh)
	if prevEnd+estimate > nextStart {
		return false, nil
	}

	metrics, err := e.provider.GetRouteMetrics(ctx, previous.EndPointCoords, next.StartPointCoords)
	if err != nil {
		return false, fmt.Errorf("reachability %s -> %s: %w", previous.ID, next.ID, err)
	}

	return prevEnd+metrics.DurationMinutes()+e.bufferMinutes <= nextStart, nil
}
