package scheduling

import (
	"context"
	"fmt"

	"driver-scheduler/internal/distance"
	"driver-scheduler/internal/geo"
	"driver-scheduler/internal/models"
)

// CostModel prices a ride for a driver as fuel for the deadhead and ride legs
// plus labor for the deadhead time and the ride itself
type CostModel struct {
	provider   distance.RouteMetricsProvider
	hourlyCost float64
}

func NewCostModel(provider distance.RouteMetricsProvider, hourlyCost float64) *CostModel {
	return &CostModel{provider: provider, hourlyCost: hourlyCost}
}

func (c *CostModel) EstimateCost(ctx context.Context, driver *models.Driver, ride *models.Ride, startLocation models.Coordinates) (*models.CostBreakdown, error) {
	toStart, err := c.provider.GetRouteMetrics(ctx, startLocation, ride.StartPointCoords)
	if err != nil {
		return nil, fmt.Errorf("cost of %s for %s: leg to start: %w", ride.ID, driver.DriverID, err)
	}
	rideLeg, err := c.provider.GetRouteMetrics(ctx, ride.StartPointCoords, ride.EndPointCoords)
	if err != nil {
		return nil, fmt.Errorf("cost of %s for %s: ride leg: %w", ride.ID, driver.DriverID, err)
	}

	start, err := geo.TimeToMinutes(ride.StartTime)
	if err != nil {
		return nil, &ValidationError{Kind: models.DiagnosticInvalidRide, RecordID: ride.ID, Reason: err.Error()}
	}
	end, err := geo.TimeToMinutes(ride.EndTime)
	if err != nil {
		return nil, &ValidationError{Kind: models.DiagnosticInvalidRide, RecordID: ride.ID, Reason: err.Error()}
	}

	totalKm := toStart.DistanceKm + rideLeg.DistanceKm
	fuel := totalKm * driver.FuelCost

	totalMinutes := toStart.DurationMinutes() + float64(end-start)
	labor := (totalMinutes / 60) * c.hourlyCost

	return &models.CostBreakdown{
		FuelCost:  fuel,
		LaborCost: labor,
		TotalCost: fuel + labor,
	}, nil
}
