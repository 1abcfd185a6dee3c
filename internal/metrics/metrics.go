// Package metrics provides Prometheus metrics and HTTP middleware for
// monitoring browserbox.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RunBuckets spans quick scripts through long data jobs, 50ms to 10m.
var RunBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600}

var (
	// RunsTotal counts finished runs by status (ok, error).
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserbox_runs_total",
			Help: "Finished runs",
		},
		[]string{"status"},
	)

	// RunDuration records run duration in seconds from submit to Idle.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "browserbox_run_duration_seconds",
			Help:    "Run duration",
			Buckets: RunBuckets,
		},
	)

	// RunRejections counts runs that never left Idle.
	RunRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserbox_run_rejections_total",
			Help: "Rejected runs",
		},
		[]string{"reason"},
	)

	// PackageInstalls counts package installs by result
	// (ok, cached, error, rejected).
	PackageInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserbox_package_installs_total",
			Help: "Package installs",
		},
		[]string{"result"},
	)

	// MaterializedFiles counts output files copied into workspaces by kind.
	MaterializedFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserbox_materialized_files_total",
			Help: "Materialized output files",
		},
		[]string{"kind"},
	)

	// SessionsActive tracks open sessions.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserbox_sessions_active",
			Help: "Active sessions",
		},
	)

	// HTTPRequests counts API requests by method and status class.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserbox_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	// HTTPRequestDuration records API request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browserbox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: RunBuckets,
		},
		[]string{"method"},
	)

	// StreamingConnections tracks SSE run streams in flight.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserbox_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		RunRejections,
		PackageInstalls,
		MaterializedFiles,
		SessionsActive,
		HTTPRequests,
		HTTPRequestDuration,
		StreamingConnections,
	)
}
