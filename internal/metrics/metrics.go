// Package metrics holds the Prometheus collectors for the storefront host.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the host-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	entryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "contract",
			Name:      "entry_calls_total",
			Help:      "Total number of contract entry-point calls.",
		},
		[]string{"method", "outcome"},
	)

	promiseQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "ledger",
			Name:      "promise_queue_depth",
			Help:      "Number of remote-action batches awaiting execution.",
		},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, entryCalls, promiseQueueDepth)
}

// Handler serves the metrics endpoint for the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled HTTP request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveEntryCall records one contract entry-point call.
func ObserveEntryCall(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	entryCalls.WithLabelValues(method, outcome).Inc()
}

// SetPromiseQueueDepth updates the pending-batch gauge.
func SetPromiseQueueDepth(depth int) {
	promiseQueueDepth.Set(float64(depth))
}
