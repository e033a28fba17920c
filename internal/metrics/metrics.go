// Package metrics exposes the Prometheus collectors for the BookSwap service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// registry holds the application-specific collectors.
	registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bookswap",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookswap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookswap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookswap",
			Subsystem: "requests",
			Name:      "lifecycle_total",
			Help:      "Book request lifecycle transitions.",
		},
		[]string{"action"}, // created, accepted, declined, cancelled
	)

	versionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookswap",
			Subsystem: "storage",
			Name:      "version_conflicts_total",
			Help:      "Optimistic concurrency conflicts observed on book saves.",
		},
	)
)

func init() {
	registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bookRequests,
		versionConflicts,
	)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks a request entering the handler chain.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight marks a request leaving the handler chain.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLifecycle counts a request lifecycle transition.
func RecordLifecycle(action string) {
	bookRequests.WithLabelValues(action).Inc()
}

// RecordVersionConflict counts an optimistic concurrency retry.
func RecordVersionConflict() {
	versionConflicts.Inc()
}
