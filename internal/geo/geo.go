// Package geo holds the stateless geometry and time helpers used by the scheduler.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"driver-scheduler/internal/models"
)

const (
	// EarthRadiusKm is the mean Earth radius used by HaversineKm
	EarthRadiusKm = 6371.0
	// DefaultAvgSpeedKmh is the speed assumed by the travel-time estimate
	DefaultAvgSpeedKmh = 50.0
	// DateLayout is the calendar date format of rides and availability windows
	DateLayout = "2006-01-02"
)

var (
	// ErrInvalidTime is returned for time-of-day strings that are not HH:MM
	ErrInvalidTime = errors.New("invalid time of day")
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD
	ErrInvalidDate = errors.New("invalid date")
)

// HaversineKm returns the great-circle distance between two points in kilometers
func HaversineKm(p1, p2 models.Coordinates) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(p2.Lat - p1.Lat)
	dLng := toRad(p2.Lng - p1.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(p1.Lat))*math.Cos(toRad(p2.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// EstimateTravelMinutes converts a distance to minutes at a constant speed.
// A non-positive speed falls back to DefaultAvgSpeedKmh.
func EstimateTravelMinutes(distanceKm, avgSpeedKmh float64) float64 {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = DefaultAvgSpeedKmh
	}
	return (distanceKm / avgSpeedKmh) * 60
}

// TimeToMinutes parses "HH:MM" into minutes since midnight
func TimeToMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	return hours*60 + minutes, nil
}

// ParseDate parses a YYYY-MM-DD calendar date. Full RFC 3339 timestamps are
// accepted too and reduced to their UTC date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// NormalizeDate returns the date in DateLayout
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}
