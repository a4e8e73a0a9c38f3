package testutil

import (
	"context"
	"math"
	"sync"

	"driver-scheduler/internal/models"
)

// RouteCall tracks a call to the route provider
type RouteCall struct {
	Origin models.Coordinates
	Dest   models.Coordinates
}

// MockRouteProvider is a mock RouteMetricsProvider for testing.
// It returns scaled Euclidean distance for deterministic tests. Overrides and
// errors are keyed by the unordered pair. Safe for concurrent use.
type MockRouteProvider struct {
	KmPerDegree float64
	SpeedKmh    float64

	mu        sync.Mutex
	overrides map[string]models.RouteMetrics
	errs      map[string]error
	calls     []RouteCall
}

func NewMockRouteProvider() *MockRouteProvider {
	return &MockRouteProvider{
		KmPerDegree: 111, // 1 degree ≈ 111km
		SpeedKmh:    50,
		overrides:   make(map[string]models.RouteMetrics),
		errs:        make(map[string]error),
	}
}

// SetRoute sets custom metrics for a pair, in either direction
func (m *MockRouteProvider) SetRoute(a, b models.Coordinates, distanceKm, durationHours float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[models.SegmentKey(a, b)] = models.RouteMetrics{DistanceKm: distanceKm, DurationHours: durationHours}
}

// SetError makes every lookup of the pair fail with err
func (m *MockRouteProvider) SetError(a, b models.Coordinates, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[models.SegmentKey(a, b)] = err
}

func (m *MockRouteProvider) GetRouteMetrics(ctx context.Context, origin, dest models.Coordinates) (*models.RouteMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, RouteCall{Origin: origin, Dest: dest})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := models.SegmentKey(origin, dest)
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	if override, ok := m.overrides[key]; ok {
		metrics := override
		return &metrics, nil
	}

	if origin.Rounded() == dest.Rounded() {
		return &models.RouteMetrics{}, nil
	}

	dLat := dest.Lat - origin.Lat
	dLng := dest.Lng - origin.Lng
	dist := math.Sqrt(dLat*dLat+dLng*dLng) * m.KmPerDegree

	return &models.RouteMetrics{
		DistanceKm:    dist,
		DurationHours: dist / m.SpeedKmh,
	}, nil
}

// Calls returns a copy of the recorded calls
func (m *MockRouteProvider) Calls() []RouteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RouteCall(nil), m.calls...)
}

// CallCount returns the number of recorded calls
func (m *MockRouteProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ResetCalls clears the recorded calls
func (m *MockRouteProvider) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// MockDistanceCache is an in-memory DistanceCacheRepository for testing
type MockDistanceCache struct {
	// PutErr, when set, is returned by Put after the entry is stored
	PutErr error

	mu      sync.Mutex
	entries map[string]*models.DistanceCacheEntry
	gets    int
	puts    int
}

func NewMockDistanceCache() *MockDistanceCache {
	return &MockDistanceCache{
		entries: make(map[string]*models.DistanceCacheEntry),
	}
}

func (c *MockDistanceCache) Get(ctx context.Context, a, b models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if entry, ok := c.entries[models.SegmentKey(a, b)]; ok {
		entryCopy := *entry
		return &entryCopy, nil
	}
	return nil, nil
}

func (c *MockDistanceCache) Put(ctx context.Context, entry *models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	entryCopy := *entry
	c.entries[models.SegmentKey(entry.PointA, entry.PointB)] = &entryCopy
	return c.PutErr
}

func (c *MockDistanceCache) Flush(ctx context.Context) error {
	return nil
}

func (c *MockDistanceCache) Len(ctx context.Context) (int, error) {
	return c.Count(), nil
}

func (c *MockDistanceCache) Close() error {
	return nil
}

// Count returns the number of entries in the cache
func (c *MockDistanceCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Puts returns how many times Put was called
func (c *MockDistanceCache) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}
