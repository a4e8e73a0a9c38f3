package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UnmarshalJSON accepts both {"lat":..,"lng":..} and the legacy [lat, lon] array form
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("coordinates: expected [lat, lon], got %d values", len(pair))
		}
		c.Lat, c.Lng = pair[0], pair[1]
		return nil
	}

	var obj struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
		Lon *float64 `json:"lon"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("coordinates: %w", err)
	}
	if obj.Lat == nil {
		return fmt.Errorf("coordinates: missing lat")
	}
	switch {
	case obj.Lng != nil:
		c.Lng = *obj.Lng
	case obj.Lon != nil:
		c.Lng = *obj.Lon
	default:
		return fmt.Errorf("coordinates: missing lng")
	}
	c.Lat = *obj.Lat
	return nil
}

// Rounded returns the coordinates rounded to cache precision
func (c Coordinates) Rounded() Coordinates {
	return Coordinates{Lat: RoundCoordinate(c.Lat), Lng: RoundCoordinate(c.Lng)}
}

// RoundCoordinate rounds to 5 decimal places (~1m precision)
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// Driver is a vehicle operator available for scheduling
type Driver struct {
	DriverID      string      `json:"driverId"`
	NumberOfSeats int         `json:"numberOfSeats"`
	FuelCost      float64     `json:"fuelCost"`
	CityCoords    Coordinates `json:"city_coords"`
}

// GetCoords returns the driver's home base
func (d *Driver) GetCoords() Coordinates {
	return d.CityCoords
}

// AvailabilityWindow is a single dated shift for a driver
type AvailabilityWindow struct {
	DriverID string `json:"driverId"`
	Date     string `json:"date"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// Ride is a transport request with a fixed time span
type Ride struct {
	ID               string      `json:"_id"`
	Date             string      `json:"date"`
	StartTime        string      `json:"startTime"`
	EndTime          string      `json:"endTime"`
	StartPointCoords Coordinates `json:"startPoint_coords"`
	EndPointCoords   Coordinates `json:"endPoint_coords"`
	NumberOfSeats    int         `json:"numberOfSeats"`
}

// Assignment lists the rides given to one driver, in schedule order
type Assignment struct {
	DriverID string   `json:"driverId"`
	RideIDs  []string `json:"rideIds"`
}

// RouteMetrics is the travel distance and duration for one segment
type RouteMetrics struct {
	DistanceKm    float64 `json:"distance_km"`
	DurationHours float64 `json:"duration_hours"`
}

// DurationMinutes converts the duration to minutes
func (m RouteMetrics) DurationMinutes() float64 {
	return m.DurationHours * 60
}

// CostBreakdown is the price of giving a ride to a driver
type CostBreakdown struct {
	FuelCost  float64 `json:"fuelCost"`
	LaborCost float64 `json:"laborCost"`
	TotalCost float64 `json:"totalCost"`
}

// RunStatus reports whether a scheduling run finished
type RunStatus string

const (
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
)

// DiagnosticKind classifies a diagnostic entry
type DiagnosticKind string

const (
	DiagnosticInvalidDriver       DiagnosticKind = "invalid_driver"
	DiagnosticInvalidRide         DiagnosticKind = "invalid_ride"
	DiagnosticInvalidAvailability DiagnosticKind = "invalid_availability"
	DiagnosticCancelled           DiagnosticKind = "cancelled"
)

// Diagnostic records an input record that was skipped, and why
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	RecordID string         `json:"recordId"`
	Message  string         `json:"message"`
}

// ScheduleResult contains the full result of a scheduling run
type ScheduleResult struct {
	RunID             string       `json:"runId"`
	Status            RunStatus    `json:"status"`
	Assignments       []Assignment `json:"assignments"`
	TotalCost         float64      `json:"totalCost"`
	UnassignedRideIDs []string     `json:"unassignedRideIds"`
	Diagnostics       []Diagnostic `json:"diagnostics"`
	ProviderCalls     int64        `json:"providerCalls"`
	StartedAt         time.Time    `json:"startedAt"`
	FinishedAt        time.Time    `json:"finishedAt"`
}

// AssignedRideCount returns the number of rides placed on a driver
func (r *ScheduleResult) AssignedRideCount() int {
	n := 0
	for _, a := range r.Assignments {
		n += len(a.RideIDs)
	}
	return n
}

// DistanceCacheEntry represents a cached, direction-independent route lookup
type DistanceCacheEntry struct {
	PointA        Coordinates `json:"point_a"`
	PointB        Coordinates `json:"point_b"`
	DistanceKm    float64     `json:"distance_km"`
	DurationHours float64     `json:"duration_hours"`
}

// Metrics returns the cached route metrics
func (e *DistanceCacheEntry) Metrics() RouteMetrics {
	return RouteMetrics{DistanceKm: e.DistanceKm, DurationHours: e.DurationHours}
}

// CanonicalPair orders two points so that (a,b) and (b,a) produce the same pair
func CanonicalPair(a, b Coordinates) (Coordinates, Coordinates) {
	a, b = a.Rounded(), b.Rounded()
	if b.Lat < a.Lat || (b.Lat == a.Lat && b.Lng < a.Lng) {
		return b, a
	}
	return a, b
}

// SegmentKey creates a unique, order-independent key for a coordinate pair
func SegmentKey(a, b Coordinates) string {
	first, second := CanonicalPair(a, b)
	return fmt.Sprintf("%.5f,%.5f|%.5f,%.5f", first.Lat, first.Lng, second.Lat, second.Lng)
}
