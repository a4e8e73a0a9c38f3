package database

import (
	"encoding/json"
	"fmt"
	"os"

	"driver-scheduler/internal/models"
)

// Input is the full set of records for one scheduling run
type Input struct {
	Drivers      []models.Driver             `json:"drivers"`
	Rides        []models.Ride               `json:"rides"`
	Availability []models.AvailabilityWindow `json:"availability"`
}

// LoadInput reads drivers, rides and availability from three JSON files
func LoadInput(driversPath, ridesPath, availabilityPath string) (*Input, error) {
	in := &Input{}

	if err := readJSONFile(driversPath, &in.Drivers); err != nil {
		return nil, fmt.Errorf("failed to load drivers: %w", err)
	}
	if err := readJSONFile(ridesPath, &in.Rides); err != nil {
		return nil, fmt.Errorf("failed to load rides: %w", err)
	}

	raw, err := os.ReadFile(availabilityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}
	in.Availability, err = ParseAvailability(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability %s: %w", availabilityPath, err)
	}

	return in, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

type nestedAvailability struct {
	DriverID     string `json:"driverId"`
	Availability []struct {
		Date  string `json:"date"`
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"availability"`
}

// ParseAvailability accepts a flat list of windows, the nested
// [{driverId, availability:[{date,start,end}]}] shape, or a mix of both.
func ParseAvailability(data []byte) ([]models.AvailabilityWindow, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	windows := make([]models.AvailabilityWindow, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("availability[%d]: %w", i, err)
		}

		if _, nested := fields["availability"]; nested {
			var n nestedAvailability
			if err := json.Unmarshal(item, &n); err != nil {
				return nil, fmt.Errorf("availability[%d]: %w", i, err)
			}
			for _, w := range n.Availability {
				windows = append(windows, models.AvailabilityWindow{
					DriverID: n.DriverID,
					Date:     w.Date,
					Start:    w.Start,
					End:      w.End,
				})
			}
			continue
		}

		var w models.AvailabilityWindow
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, fmt.Errorf("availability[%d]: %w", i, err)
		}
		windows = append(windows, w)
	}

	return windows, nil
}
