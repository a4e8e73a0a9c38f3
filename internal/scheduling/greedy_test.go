package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-scheduler/internal/distance"
	"driver-scheduler/internal/geo"
	"driver-scheduler/internal/models"
	"driver-scheduler/internal/testutil"
)

func optimize(t *testing.T, provider distance.RouteMetricsProvider, cfg Config, req *ScheduleRequest) *models.ScheduleResult {
	t.Helper()
	result, err := NewGreedyScheduler(provider, cfg).Optimize(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// assertPartition checks every valid ride id lands in exactly one place
func assertPartition(t *testing.T, rides []models.Ride, result *models.ScheduleResult) {
	t.Helper()
	seen := make(map[string]int)
	for _, a := range result.Assignments {
		for _, id := range a.RideIDs {
			seen[id]++
		}
	}
	for _, id := range result.UnassignedRideIDs {
		seen[id]++
	}
	for _, r := range rides {
		assert.Equal(t, 1, seen[r.ID], "ride %s must appear exactly once", r.ID)
	}
}

func TestOptimize_NilRequest(t *testing.T) {
	_, err := NewGreedyScheduler(testutil.NewMockRouteProvider(), DefaultConfig()).Optimize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

func TestOptimize_Empty(t *testing.T) {
	result := optimize(t, testutil.NewMockRouteProvider(), DefaultConfig(), &ScheduleRequest{})

	assert.Equal(t, models.RunStatusComplete, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.NotNil(t, result.Assignments)
	assert.NotNil(t, result.UnassignedRideIDs)
	assert.Empty(t, result.Assignments)
	assert.Zero(t, result.TotalCost)
}

func TestOptimize_CapacityShortCircuit(t *testing.T) {
	provider := testutil.NewMockRouteProvider()
	req := &ScheduleRequest{
		Drivers:      []models.Driver{makeDriver("d1", 4, 1, pointA)},
		Rides:        []models.Ride{makeRide("r1", testDate, "08:00", "09:00", pointB, pointC, 5)},
		Availability: allDay("d1"),
	}

	result := optimize(t, provider, DefaultConfig(), req)

	assert.Empty(t, result.Assignments)
	assert.Equal(t, []string{"r1"}, result.UnassignedRideIDs)
	assert.Equal(t, 0, provider.CallCount())
}

func TestOptimize_PicksCheapestDriver(t *testing.T) {
	provider := testutil.NewMockRouteProvider()
	provider.SetRoute(pointA, pointB, 2, 0)    // d1 home -> start
	provider.SetRoute(pointC, pointB, 5, 0)    // d2 home -> start
	provider.SetRoute(pointB, pointD, 10, 0.2) // ride leg

	req := &ScheduleRequest{
		Drivers: []models.Driver{
			makeDriver("d1", 4, 1, pointA),   // 12 km * 1 + 30 = 42.0
			makeDriver("d2", 4, 0.5, pointC), // 15 km * 0.5 + 30 = 37.5
		},
		Rides:        []models.Ride{makeRide("r1", testDate, "08:00", "09:00", pointB, pointD, 2)},
		Availability: allDay("d1", "d2"),
	}

	result := optimize(t, provider, DefaultConfig(), req)

	require.Len(t, result.Assignments, 1)
	assert.Equal(t, models.Assignment{DriverID: "d2", RideIDs: []string{"r1"}}, result.Assignments[0])
	assert.InDelta(t, 37.5, result.TotalCost, 1e-9)
	assert.Empty(t, result.UnassignedRideIDs)
}

func TestOptimize_AssignmentsInOrderOfFirstAssignment(t *testing.T) {
	provider := testutil.NewMockRouteProvider()
	provider.SetRoute(pointA, pointB, 2, 0)
	provider.SetRoute(pointC, pointB, 5, 0)
	provider.SetRoute(pointB, pointD, 10, 0.2)
	provider.SetRoute(pointA, pointC, 8, 0.1)

	req := &ScheduleRequest{
		Drivers: []models.Driver{
			makeDriver("d1", 4, 1, pointA),
			makeDriver("d2", 4, 0.5, pointC),
		},
		Rides: []models.Ride{
			makeRide("late", testDate, "10:00", "11:00", pointA, pointC, 1),
			makeRide("early", testDate, "08:00", "09:00", pointB, pointD, 1),
		},
		Availability: []models.AvailabilityWindow{
			{DriverID: "d1", Date: testDate, Start: "06:00", End: "22:00"},
			{DriverID: "d2", Date: testDate, Start: "06:00", End: "09:30"},
		},
	}

	result := optimize(t, provider, DefaultConfig(), req)

	assert.Equal(t, []models.Assignment{
		{DriverID: "d2", RideIDs: []string{"early"}},
		{DriverID: "d1", RideIDs: []string{"late"}},
	}, result.Assignments)
	assert.InDelta(t, 37.5+38.0, result.TotalCost, 1e-9)
}

func TestOptimize_FirstAssignmentIsRecorded(t *testing.T) {
	req := &ScheduleRequest{
		Drivers: []models.Driver{makeDriver("d1", 4, 1, pointA)},
		Rides: []models.Ride{
			makeRide("r1", testDate, "08:00", "09:00", pointA, pointA, 1),
			makeRide("r2", "2025-03-11", "08:00", "09:00", pointA, pointA, 1),
		},
		Availability: []models.AvailabilityWindow{
			{DriverID: "d1", Date: testDate, Start: "06:00", End: "22:00"},
			{DriverID: "d1", Date: "2025-03-11", Start: "06:00", End: "22:00"},
		},
	}

	result := optimize(t, testutil.NewMockRouteProvider(), DefaultConfig(), req)

	assert.Equal(t, []models.Assignment{{DriverID: "d1", RideIDs: []string{"r1", "r2"}}}, result.Assignments)
}

func TestOptimize_NoAvailabilityMakesNoCalls(t *testing.T) {
	provider := testutil.NewMockRouteProvider()
	req := &ScheduleRequest{
		Drivers: []models.Driver{
			makeDriver("d1", 4, 1, pointA),
			makeDriver("d2", 4, 1, pointC),
		},
		Rides:        []models.Ride{makeRide("r1", "2025-03-12", "08:00", "09:00", pointB, pointD, 1)},
		Availability: allDay("d1", "d2"),
	}

	result := optimize(t, provider, DefaultConfig(), req)

	assert.Equal(t, []string{"r1"}, result.UnassignedRideIDs)
	assert.Equal(t, 0, provider.CallCount())
}

func TestOptimize_ProviderErrorDoesNotAbort(t *testing.T) {
	provider := testutil.NewMockRouteProvider()
	provider.SetError(pointA, pointB, errors.New("osrm unavailable"))

	rides := []models.Ride{
		makeRide("r1", testDate, "08:00", "09:00", pointB, pointC, 1),
		makeRide("r2", testDate, "10:00", "11:00", pointC, pointD, 1),
	}
	req := &ScheduleRequest{
		Drivers:      []models.Driver{makeDriver("d1", 4, 1, pointA)},
		Rides:        rides,
		Availability: allDay("d1"),
	}

	result := optimize(t, provider, DefaultConfig(), req)

	assert.Equal(t, models.RunStatusComplete, result.Status)
	assert.Equal(t, []string{"r1"}, result.UnassignedRideIDs)
	assert.Equal(t, []models.Assignment{{DriverID: "d1", RideIDs: []string{"r2"}}}, result.Assignments)
	assertPartition(t, rides, result)
}

func TestOptimize_TieBreak(t *testing.T) {
	rides := []models.Ride{
		makeRide("r1", testDate, "08:00", "09:00", pointA, pointA, 1),
		makeRide("r2", testDate, "10:00", "11:00", pointA, pointA, 1),
	}
	req := &ScheduleRequest{
		Drivers: []models.Driver{
			makeDriver("d1", 4, 1, pointA),
			makeDriver("d2", 4, 1, pointA),
		},
		Rides:        rides,
		Availability: allDay("d1", "d2"),
	}

	first := optimize(t, testutil.NewMockRouteProvider(), DefaultConfig(), req)
	assert.Equal(t, []models.Assignment{{DriverID: "d1", RideIDs: []string{"r1", "r2"}}}, first.Assignments)

	cfg := DefaultConfig()
	cfg.TieBreak = TieBreakFewestRides
	fewest := optimize(t, testutil.NewMockRouteProvider(), cfg, req)
	assert.Equal(t, []models.Assignment{
		{DriverID: "d1", RideIDs: []string{"r1"}},
		{DriverID: "d2", RideIDs: []string{"r2"}},
	}, fewest.Assignments)
	assert.Equal(t, first.TotalCost, fewest.TotalCost)
}

func TestOptimize_Validation(t *testing.T) {
	rides := []models.Ride{
		makeRide("r1", testDate, "08:00", "09:00", pointA, pointB, 1),
		makeRide("r2", testDate, "8am", "09:00", pointA, pointB, 1),
		makeRide("r3", testDate, "10:00", "09:00", pointA, pointB, 1),
		makeRide("r1", testDate, "12:00", "13:00", pointA, pointB, 1),
		makeRide("r4", "someday", "08:00", "09:00", pointA, pointB, 1),
	}
	req := &ScheduleRequest{
		Drivers: []models.Driver{
			makeDriver("d1", 4, 1, pointA),
			makeDriver("neg", -1, 1, pointA),
			makeDriver("d1", 8, 0, pointB),
		},
		Rides: rides,
		Availability: append(allDay("d1"),
			models.AvailabilityWindow{DriverID: "d1", Date: testDate, Start: "25:00", End: "26:00"}),
	}

	result := optimize(t, testutil.NewMockRouteProvider(), DefaultConfig(), req)

	kinds := make(map[models.DiagnosticKind]int)
	for _, d := range result.Diagnostics {
		kinds[d.Kind]++
	}
	assert.Equal(t, 2, kinds[models.DiagnosticInvalidDriver])
	assert.Equal(t, 4, kinds[models.DiagnosticInvalidRide])
	assert.Equal(t, 1, kinds[models.DiagnosticInvalidAvailability])

	assert.Equal(t, []models.Assignment{{DriverID: "d1", RideIDs: []string{"r1"}}}, result.Assignments)
	assert.ElementsMatch(t, []string{"r2", "r3", "r4"}, result.UnassignedRideIDs)
	assertPartition(t, rides, result)
}

func TestOptimize_CancelledBeforeStart(t *testing.T) {
	provider := testutil.NewMockRouteProvider()
	rides := []models.Ride{
		makeRide("r1", testDate, "08:00", "09:00", pointA, pointB, 1),
		makeRide("r2", testDate, "10:00", "11:00", pointB, pointC, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewGreedyScheduler(provider, DefaultConfig()).Optimize(ctx, &ScheduleRequest{
		Drivers:      []models.Driver{makeDriver("d1", 4, 1, pointA)},
		Rides:        rides,
		Availability: allDay("d1"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Equal(t, []string{"r1", "r2"}, result.UnassignedRideIDs)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, models.DiagnosticCancelled, result.Diagnostics[0].Kind)
	assert.Equal(t, 0, provider.CallCount())
}

// cancellingProvider cancels the run the first time a lookup touches trigger
type cancellingProvider struct {
	*testutil.MockRouteProvider
	trigger models.Coordinates
	cancel  context.CancelFunc
}

func (p *cancellingProvider) GetRouteMetrics(ctx context.Context, origin, dest models.Coordinates) (*models.RouteMetrics, error) {
	if origin == p.trigger || dest == p.trigger {
		p.cancel()
		return nil, ctx.Err()
	}
	return p.MockRouteProvider.GetRouteMetrics(ctx, origin, dest)
}

func TestOptimize_CancelledMidRunKeepsCommittedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &cancellingProvider{MockRouteProvider: testutil.NewMockRouteProvider(), trigger: pointD, cancel: cancel}
	rides := []models.Ride{
		makeRide("r1", testDate, "08:00", "09:00", pointA, pointB, 1),
		makeRide("r2", testDate, "12:00", "13:00", pointD, pointA, 1),
		makeRide("r3", testDate, "15:00", "16:00", pointA, pointB, 1),
	}

	result, err := NewGreedyScheduler(provider, DefaultConfig()).Optimize(ctx, &ScheduleRequest{
		Drivers:      []models.Driver{makeDriver("d1", 4, 1, pointA)},
		Rides:        rides,
		Availability: allDay("d1"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Equal(t, []models.Assignment{{DriverID: "d1", RideIDs: []string{"r1"}}}, result.Assignments)
	assert.Equal(t, []string{"r2", "r3"}, result.UnassignedRideIDs)
	assert.Greater(t, result.TotalCost, 0.0)
	assertPartition(t, rides, result)
}

// fleet builds a mixed workload over two days
func fleet() *ScheduleRequest {
	points := []models.Coordinates{pointA, pointB, pointC, pointD, {Lat: 0.05, Lng: 0.05}, {Lat: 0.2, Lng: 0.15}}

	req := &ScheduleRequest{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d%d", i+1)
		req.Drivers = append(req.Drivers, makeDriver(id, 2+i, 0.2+0.1*float64(i), points[i]))
		req.Availability = append(req.Availability,
			models.AvailabilityWindow{DriverID: id, Date: testDate, Start: fmt.Sprintf("%02d:00", 6+i), End: "20:00"},
			models.AvailabilityWindow{DriverID: id, Date: "2025-03-11", Start: "07:00", End: fmt.Sprintf("%02d:00", 14+i)},
		)
	}
	for i := 0; i < 24; i++ {
		date := testDate
		if i%3 == 0 {
			date = "2025-03-11"
		}
		start := 7*60 + (i*37)%600
		req.Rides = append(req.Rides, makeRide(
			fmt.Sprintf("r%02d", i),
			date,
			fmt.Sprintf("%02d:%02d", start/60, start%60),
			fmt.Sprintf("%02d:%02d", (start+45)/60, (start+45)%60),
			points[i%len(points)],
			points[(i*5+1)%len(points)],
			1+i%7,
		))
	}
	return req
}

func TestOptimize_FleetScheduleHoldsConstraints(t *testing.T) {
	req := fleet()
	provider := testutil.NewMockRouteProvider()
	result := optimize(t, provider, DefaultConfig(), req)

	assertPartition(t, req.Rides, result)

	drivers := make(map[string]models.Driver)
	for _, d := range req.Drivers {
		drivers[d.DriverID] = d
	}
	rides := make(map[string]models.Ride)
	for _, r := range req.Rides {
		rides[r.ID] = r
	}

	for _, a := range result.Assignments {
		driver := drivers[a.DriverID]
		for i, id := range a.RideIDs {
			ride := rides[id]
			assert.GreaterOrEqual(t, driver.NumberOfSeats, ride.NumberOfSeats, "capacity of %s for %s", a.DriverID, id)
			if i == 0 {
				continue
			}

			prev := rides[a.RideIDs[i-1]]
			if prev.Date != ride.Date {
				continue
			}
			prevEnd, _ := geo.TimeToMinutes(prev.EndTime)
			nextStart, _ := geo.TimeToMinutes(ride.StartTime)
			travel, err := provider.GetRouteMetrics(context.Background(), prev.EndPointCoords, ride.StartPointCoords)
			require.NoError(t, err)
			assert.LessOrEqual(t, float64(prevEnd)+travel.DurationMinutes()+10, float64(nextStart),
				"driver %s cannot reach %s after %s", a.DriverID, id, prev.ID)
		}
	}
}

func TestOptimize_DeterministicAcrossWorkerCounts(t *testing.T) {
	req := fleet()

	cfg := DefaultConfig()
	cfg.Workers = 1
	serial := optimize(t, testutil.NewMockRouteProvider(), cfg, req)

	cfg.Workers = 8
	parallel := optimize(t, testutil.NewMockRouteProvider(), cfg, req)

	assert.Equal(t, serial.Assignments, parallel.Assignments)
	assert.Equal(t, serial.UnassignedRideIDs, parallel.UnassignedRideIDs)
	assert.Equal(t, serial.TotalCost, parallel.TotalCost)
}

// fakeOSRM serves route lookups with distances derived from the requested coordinates
func fakeOSRM(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coords := strings.Split(strings.TrimPrefix(r.URL.Path, "/route/v1/driving/"), ";")
		if len(coords) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var pts [2]models.Coordinates
		for i, c := range coords {
			lng, lat, _ := strings.Cut(c, ",")
			pts[i].Lng, _ = strconv.ParseFloat(lng, 64)
			pts[i].Lat, _ = strconv.ParseFloat(lat, 64)
		}
		meters := geo.HaversineKm(pts[0], pts[1]) * 1300
		seconds := meters / 11.0
		fmt.Fprintf(w, `{"code":"Ok","routes":[{"distance":%f,"duration":%f}]}`, meters, seconds)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOptimize_WarmCacheIsIdempotent(t *testing.T) {
	server := fakeOSRM(t)
	provider := distance.NewOSRMProvider(testutil.NewMockDistanceCache(), distance.Options{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	req := fleet()

	cold := optimize(t, provider, DefaultConfig(), req)
	assert.Greater(t, cold.ProviderCalls, int64(0))

	warm := optimize(t, provider, DefaultConfig(), req)
	assert.Equal(t, int64(0), warm.ProviderCalls)

	assert.Equal(t, cold.Assignments, warm.Assignments)
	assert.Equal(t, cold.UnassignedRideIDs, warm.UnassignedRideIDs)
	assert.Equal(t, cold.TotalCost, warm.TotalCost)
	assert.NotEqual(t, cold.RunID, warm.RunID)
}

// shifted moves every coordinate in req north by dLat degrees
func shifted(req *ScheduleRequest, dLat float64) *ScheduleRequest {
	out := &ScheduleRequest{Availability: req.Availability}
	for _, d := range req.Drivers {
		d.CityCoords.Lat += dLat
		out.Drivers = append(out.Drivers, d)
	}
	for _, r := range req.Rides {
		r.StartPointCoords.Lat += dLat
		r.EndPointCoords.Lat += dLat
		out.Rides = append(out.Rides, r)
	}
	return out
}

func TestOptimize_ConcurrentRunsCountOwnProviderCalls(t *testing.T) {
	server := fakeOSRM(t)
	newProvider := func() *distance.OSRMProvider {
		return distance.NewOSRMProvider(testutil.NewMockDistanceCache(), distance.Options{
			BaseURL:    server.URL,
			HTTPClient: server.Client(),
		})
	}
	north, south := fleet(), shifted(fleet(), 1)

	northAlone := optimize(t, newProvider(), DefaultConfig(), north).ProviderCalls
	southAlone := optimize(t, newProvider(), DefaultConfig(), south).ProviderCalls
	require.Greater(t, northAlone, int64(0))
	require.Greater(t, southAlone, int64(0))

	provider := newProvider()
	var wg sync.WaitGroup
	results := make([]*models.ScheduleResult, 2)
	for i, req := range []*ScheduleRequest{north, south} {
		wg.Add(1)
		go func(i int, req *ScheduleRequest) {
			defer wg.Done()
			result, err := NewGreedyScheduler(provider, DefaultConfig()).Optimize(context.Background(), req)
			assert.NoError(t, err)
			results[i] = result
		}(i, req)
	}
	wg.Wait()
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])

	assert.Equal(t, northAlone, results[0].ProviderCalls)
	assert.Equal(t, southAlone, results[1].ProviderCalls)
	assert.Equal(t, provider.APICalls(), results[0].ProviderCalls+results[1].ProviderCalls)
}

func TestOptimize_InvalidRideWithoutIDGetsIndexID(t *testing.T) {
	rides := []models.Ride{
		makeRide("r1", testDate, "08:00", "09:00", pointA, pointB, 1),
		makeRide("", testDate, "10:00", "11:00", pointA, pointB, 1),
		makeRide("", "someday", "12:00", "13:00", pointA, pointB, 1),
	}
	result := optimize(t, testutil.NewMockRouteProvider(), DefaultConfig(), &ScheduleRequest{
		Drivers:      []models.Driver{makeDriver("d1", 4, 1, pointA)},
		Rides:        rides,
		Availability: allDay("d1"),
	})

	assert.Equal(t, []models.Assignment{{DriverID: "d1", RideIDs: []string{"r1"}}}, result.Assignments)
	assert.Equal(t, []string{"#1", "#2"}, result.UnassignedRideIDs)
	require.Len(t, result.Diagnostics, 2)
	assert.Equal(t, "#1", result.Diagnostics[0].RecordID)
	assert.Equal(t, "missing _id", result.Diagnostics[0].Message)
	assert.Equal(t, "#2", result.Diagnostics[1].RecordID)
}
