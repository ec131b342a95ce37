// Package observability holds the Prometheus collectors and OpenTelemetry tracer shared across the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ChangeRequestsTotal counts change-request lifecycle events by type and outcome.
	ChangeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_change_requests_total",
		Help: "Change requests by type and outcome (submitted, approved, rejected, failed)",
	}, []string{"type", "outcome"})

	// ApprovalDuration records how long an approval transaction takes, retries included.
	ApprovalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docket_approval_duration_seconds",
		Help:    "Duration of change-request approval in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// AllocationRetries counts identifier allocation conflicts that triggered a retry.
	AllocationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docket_allocation_retries_total",
		Help: "Total number of identifier allocation retries after a unique-key conflict",
	})

	// QCTransitions counts QC/PM sign-off transitions by source and target status.
	QCTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_qc_transitions_total",
		Help: "QC/PM document approval transitions",
	}, []string{"from", "to"})

	// DocumentGenerationFailures counts non-fatal document rendering failures by stage.
	DocumentGenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_document_generation_failures_total",
		Help: "Document generation failures by workflow stage",
	}, []string{"stage"})

	// NotificationFailures counts notifications that could not be persisted or published.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_notification_failures_total",
		Help: "Notification delivery failures by step",
	}, []string{"step"})

	// WebSocketConnections is the gauge of active notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docket_websocket_connections",
		Help: "Number of active notification WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})
)
