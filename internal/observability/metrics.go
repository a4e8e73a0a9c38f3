package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "driver_scheduler"

var (
	ProviderCallsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "provider_calls_total", Help: "External routing provider calls"})
	ProviderErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "provider_errors_total", Help: "Failed routing provider calls"})
	CacheHitsTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cache_hits_total", Help: "Distance cache hits"})
	CacheMissesTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cache_misses_total", Help: "Distance cache misses"})
	CacheWriteErrors    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cache_write_errors_total", Help: "Distance cache writes that failed to persist"})

	RidesAssignedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_assigned_total", Help: "Rides assigned to a driver"})
	RidesUnassignedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_unassigned_total", Help: "Rides left without a driver"})
	RunsTotal            = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Scheduling runs by final status"},
		[]string{"status"},
	)
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Scheduling run latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
