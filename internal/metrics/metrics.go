package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	// HTTPRequestsTotal counts requests by method, route template and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)
)

// Session Metrics
var (
	// SessionsActive tracks the number of sessions currently held in memory
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messenger_sessions_active",
			Help: "Number of authenticated sessions held in memory",
		},
	)

	// SessionsRemovedTotal counts removed sessions by reason (logout, idle, shutdown)
	SessionsRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_sessions_removed_total",
			Help: "Total sessions removed by reason",
		},
		[]string{"reason"},
	)

	// SessionLogoutErrors counts best-effort handle logouts that failed
	SessionLogoutErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_session_logout_errors_total",
			Help: "Total failed handle logouts during session removal",
		},
	)
)

// Batch Mutation Metrics
var (
	// NicknameChangesTotal counts per-member nickname calls by outcome (success/failure)
	NicknameChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_nickname_changes_total",
			Help: "Total per-member nickname changes by outcome",
		},
		[]string{"outcome"},
	)

	// GroupRenamesTotal counts group title changes by outcome (success/failure)
	GroupRenamesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_group_renames_total",
			Help: "Total group renames by outcome",
		},
		[]string{"outcome"},
	)

	// BatchRunDuration tracks how long one orchestrator run takes in seconds
	BatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "messenger_batch_run_duration_seconds",
			Help:    "Duration of batch mutation runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)

	// MonitorChecksTotal counts group monitor checks by result (ok/changed/error)
	MonitorChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_monitor_checks_total",
			Help: "Total group monitor checks by result",
		},
		[]string{"result"},
	)
)
