package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"driver-scheduler/internal/database"
	"driver-scheduler/internal/models"
	"driver-scheduler/internal/observability"
)

const (
	DefaultBaseURL     = "https://router.project-osrm.org"
	DefaultTimeout     = 30 * time.Second
	DefaultMinInterval = time.Second
)

// RouteMetricsProvider returns driving distance and duration between two points
type RouteMetricsProvider interface {
	GetRouteMetrics(ctx context.Context, origin, dest models.Coordinates) (*models.RouteMetrics, error)
}

// ProviderError is returned when the routing provider cannot produce metrics
type ProviderError struct {
	Origin     models.Coordinates
	Dest       models.Coordinates
	StatusCode int
	Reason     string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("route metrics failed (%.5f,%.5f)->(%.5f,%.5f): %s",
		e.Origin.Lat, e.Origin.Lng, e.Dest.Lat, e.Dest.Lng, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type callCounterKey struct{}

// WithCallCounter returns a context whose OSRM requests are also counted on c.
// Requests shared through an in-flight lookup count for the caller that started them.
func WithCallCounter(ctx context.Context, c *atomic.Int64) context.Context {
	return context.WithValue(ctx, callCounterKey{}, c)
}

func countCall(ctx context.Context) {
	if c, ok := ctx.Value(callCounterKey{}).(*atomic.Int64); ok && c != nil {
		c.Add(1)
	}
}

// Options configures an OSRMProvider. Zero values take the defaults,
// except MinInterval where 0 disables throttling.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
	HTTPClient  *http.Client
}

// OSRMProvider implements RouteMetricsProvider on top of the OSRM route API
// with a persistent cache in front of it
type OSRMProvider struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	cache      database.DistanceCacheRepository
	limiter    *rate.Limiter
	inflight   singleflight.Group
	calls      atomic.Int64
}

type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// NewOSRMProvider creates a new OSRM route provider with caching
func NewOSRMProvider(cache database.DistanceCacheRepository, opts Options) *OSRMProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	p := &OSRMProvider{
		baseURL:    baseURL,
		httpClient: client,
		timeout:    timeout,
		cache:      cache,
	}
	if opts.MinInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return p
}

// APICalls returns the number of requests sent to OSRM by this provider
func (p *OSRMProvider) APICalls() int64 {
	return p.calls.Load()
}

func (p *OSRMProvider) GetRouteMetrics(ctx context.Context, origin, dest models.Coordinates) (*models.RouteMetrics, error) {
	// Same point after rounding = 0
	if origin.Rounded() == dest.Rounded() {
		return &models.RouteMetrics{}, nil
	}

	if cached := p.lookup(ctx, origin, dest); cached != nil {
		observability.CacheHitsTotal.Inc()
		return cached, nil
	}
	observability.CacheMissesTotal.Inc()

	key := models.SegmentKey(origin, dest)
	ch := p.inflight.DoChan(key, func() (interface{}, error) {
		// The flight outlives the caller that started it; other callers may be waiting on it
		flightCtx := context.WithoutCancel(ctx)

		// A flight that finished between our lookup and DoChan has already stored it
		if cached := p.lookup(flightCtx, origin, dest); cached != nil {
			return cached, nil
		}

		log.Printf("[OSRM] Cache miss: origin=(%.6f,%.6f) dest=(%.6f,%.6f)", origin.Lat, origin.Lng, dest.Lat, dest.Lng)
		metrics, err := p.fetchRoute(flightCtx, origin, dest)
		if err != nil {
			observability.ProviderErrorsTotal.Inc()
			return nil, err
		}

		entry := &models.DistanceCacheEntry{
			PointA:        origin,
			PointB:        dest,
			DistanceKm:    metrics.DistanceKm,
			DurationHours: metrics.DurationHours,
		}
		putCtx, cancel := context.WithTimeout(flightCtx, p.timeout)
		defer cancel()
		if err := p.cache.Put(putCtx, entry); err != nil {
			observability.CacheWriteErrors.Inc()
			var ioErr *database.CacheIOError
			if errors.As(err, &ioErr) {
				log.Printf("[ERROR] Distance cache not persisted, continuing in memory: %v", ioErr)
			} else {
				log.Printf("[ERROR] Failed to store distance cache entry: %v", err)
			}
		}
		return metrics, nil
	})

	select {
	case <-ctx.Done():
		return nil, &ProviderError{Origin: origin, Dest: dest, Reason: ctx.Err().Error(), Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Printf("[OSRM] Shared in-flight lookup: key=%s", key)
		}
		metrics := *res.Val.(*models.RouteMetrics)
		return &metrics, nil
	}
}

// lookup returns cached metrics or nil; cache read failures count as a miss
func (p *OSRMProvider) lookup(ctx context.Context, origin, dest models.Coordinates) *models.RouteMetrics {
	cached, err := p.cache.Get(ctx, origin, dest)
	if err != nil {
		log.Printf("[ERROR] Distance cache read failed: origin=(%.6f,%.6f) dest=(%.6f,%.6f) err=%v",
			origin.Lat, origin.Lng, dest.Lat, dest.Lng, err)
		return nil
	}
	if cached == nil {
		return nil
	}
	m := cached.Metrics()
	return &m
}

func (p *OSRMProvider) fetchRoute(ctx context.Context, origin, dest models.Coordinates) (*models.RouteMetrics, error) {
	fail := func(status int, reason string) error {
		return &ProviderError{Origin: origin, Dest: dest, StatusCode: status, Reason: reason}
	}

	// Queueing for the limiter and the request itself are each bounded by the timeout
	if p.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return nil, fail(0, err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// OSRM takes lng,lat
	queryURL := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		p.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create OSRM request: err=%v", err)
		return nil, fail(0, err.Error())
	}
	req.Header.Set("Accept", "application/json")

	p.calls.Add(1)
	countCall(ctx)
	observability.ProviderCallsTotal.Inc()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] OSRM API request failed: err=%v", err)
		return nil, fail(0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[ERROR] OSRM API error: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fail(resp.StatusCode, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var osrmResp osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&osrmResp); err != nil {
		log.Printf("[ERROR] Failed to decode OSRM response: err=%v", err)
		return nil, fail(resp.StatusCode, "decode response: "+err.Error())
	}

	if osrmResp.Code != "Ok" {
		log.Printf("[ERROR] OSRM returned error code: code=%s message=%s", osrmResp.Code, osrmResp.Message)
		return nil, fail(resp.StatusCode, fmt.Sprintf("OSRM error: %s", osrmResp.Code))
	}
	if len(osrmResp.Routes) == 0 {
		return nil, fail(resp.StatusCode, "no routes returned")
	}

	route := osrmResp.Routes[0]
	metrics := &models.RouteMetrics{
		DistanceKm:    route.Distance / 1000,
		DurationHours: route.Duration / 3600,
	}
	log.Printf("[OSRM] Route calculated: origin=(%.6f,%.6f) dest=(%.6f,%.6f) distance_km=%.2f duration_h=%.3f",
		origin.Lat, origin.Lng, dest.Lat, dest.Lng, metrics.DistanceKm, metrics.DurationHours)
	return metrics, nil
}
