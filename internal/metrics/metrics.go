// Package metrics defines Prometheus metrics for the admin service.
// All collectors are registered upfront so other packages can use them
// without touching this file.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks warehouse sessions currently checked out.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refadmin_sessions_active",
		Help: "Number of warehouse sessions currently checked out",
	})

	// SessionsIdle tracks warehouse sessions idle in the pool.
	SessionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refadmin_sessions_idle",
		Help: "Number of idle warehouse sessions in the pool",
	})

	// SessionsMax reports the configured session ceiling.
	SessionsMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refadmin_sessions_max",
		Help: "Configured maximum number of warehouse sessions",
	})

	// SessionOps counts pool operations by outcome.
	SessionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refadmin_session_ops_total",
		Help: "Total session pool operations",
	}, []string{"status"})

	// AcquireWait tracks time spent blocked waiting for a session.
	AcquireWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refadmin_acquire_wait_seconds",
		Help:    "Time spent waiting for a warehouse session",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	// QueryDuration tracks warehouse statement execution time.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refadmin_query_duration_seconds",
		Help:    "Warehouse statement execution duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refadmin_http_requests_total",
		Help: "Total HTTP requests handled by the admin API",
	}, []string{"method", "path", "status"})

	// HTTPDuration tracks API request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refadmin_http_request_duration_seconds",
		Help:    "Admin API request duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"method", "path"})

	// CacheOps counts read-cache lookups by result.
	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refadmin_cache_ops_total",
		Help: "Total cache operations",
	}, []string{"result"})

	// AuditWrites counts audit trail entries written.
	AuditWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refadmin_audit_writes_total",
		Help: "Total audit trail entries written",
	})
)
