package scheduling

import (
	"fmt"
	"math"

	"driver-scheduler/internal/geo"
	"driver-scheduler/internal/models"
)

// rideSpan is a ride with its date and times already parsed
type rideSpan struct {
	ride  *models.Ride
	date  string
	start int
	end   int
}

func parseRide(r *models.Ride) (*rideSpan, error) {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Kind: models.DiagnosticInvalidRide, RecordID: r.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if r.ID == "" {
		return nil, invalid("missing _id")
	}
	if r.NumberOfSeats < 0 {
		return nil, invalid("numberOfSeats %d is negative", r.NumberOfSeats)
	}
	date, err := geo.NormalizeDate(r.Date)
	if err != nil {
		return nil, invalid("date: %v", err)
	}
	start, err := geo.TimeToMinutes(r.StartTime)
	if err != nil {
		return nil, invalid("startTime: %v", err)
	}
	end, err := geo.TimeToMinutes(r.EndTime)
	if err != nil {
		return nil, invalid("endTime: %v", err)
	}
	if end <= start {
		return nil, invalid("endTime %s is not after startTime %s", r.EndTime, r.StartTime)
	}

	return &rideSpan{ride: r, date: date, start: start, end: end}, nil
}

func validateDriver(d *models.Driver) error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Kind: models.DiagnosticInvalidDriver, RecordID: d.DriverID, Reason: fmt.Sprintf(format, args...)}
	}

	if d.DriverID == "" {
		return invalid("missing driverId")
	}
	if d.NumberOfSeats < 0 {
		return invalid("numberOfSeats %d is negative", d.NumberOfSeats)
	}
	if d.FuelCost < 0 || math.IsNaN(d.FuelCost) || math.IsInf(d.FuelCost, 0) {
		return invalid("fuelCost %v is not a non-negative number", d.FuelCost)
	}
	return nil
}

type window struct {
	date  string
	start int
	end   int
}

// Availability indexes availability windows by driver
type Availability struct {
	byDriver map[string][]window
}

// NewAvailability indexes the valid windows and reports the invalid ones
func NewAvailability(windows []models.AvailabilityWindow) (*Availability, []*ValidationError) {
	a := &Availability{byDriver: make(map[string][]window)}
	var invalid []*ValidationError

	for _, w := range windows {
		parsed, err := parseWindow(w)
		if err != nil {
			invalid = append(invalid, &ValidationError{
				Kind:     models.DiagnosticInvalidAvailability,
				RecordID: w.DriverID,
				Reason:   fmt.Sprintf("%s %s-%s: %v", w.Date, w.Start, w.End, err),
			})
			continue
		}
		a.byDriver[w.DriverID] = append(a.byDriver[w.DriverID], parsed)
	}

	return a, invalid
}

func parseWindow(w models.AvailabilityWindow) (window, error) {
	if w.DriverID == "" {
		return window{}, fmt.Errorf("missing driverId")
	}
	date, err := geo.NormalizeDate(w.Date)
	if err != nil {
		return window{}, err
	}
	start, err := geo.TimeToMinutes(w.Start)
	if err != nil {
		return window{}, err
	}
	end, err := geo.TimeToMinutes(w.End)
	if err != nil {
		return window{}, err
	}
	if end < start {
		return window{}, fmt.Errorf("end before start")
	}
	return window{date: date, start: start, end: end}, nil
}

// Covers reports whether one of the driver's windows on date contains [start, end]
func (a *Availability) Covers(driverID, date string, start, end int) bool {
	for _, w := range a.byDriver[driverID] {
		if w.date == date && w.start <= start && end <= w.end {
			return true
		}
	}
	return false
}
