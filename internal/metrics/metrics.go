// Package metrics defines Prometheus metrics for the overlay service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overlay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	EntryCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_entries_total",
			Help: "Current overlay entry count",
		},
	)

	StoreVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_store_version",
			Help: "Monotonic overlay store version",
		},
	)

	OrphanCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_orphan_entries",
			Help: "Overlay entries with no matching model target at last resolve",
		},
	)

	AmbiguousCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_ambiguous_entries",
			Help: "Overlay entries with multiple matching model targets at last resolve",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		EntryCount, StoreVersion, OrphanCount, AmbiguousCount,
		WSConnections,
	)
}
