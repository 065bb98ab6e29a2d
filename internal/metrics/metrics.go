// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package metrics holds the Prometheus instruments of the photobooth and the
// small helpers components use to record into them. Everything registers on
// the default registry and is served by the local API on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Trigger pipeline
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_triggers_total",
			Help: "Triggers by outcome",
		},
		[]string{"outcome"}, // printed, out_of_paper, busy, no_paper, capture_error, render_error, print_error, no_code
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "figure_pipeline_stage_duration_seconds",
			Help:    "Duration of each trigger pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"stage"},
	)

	TicketCounter = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "figure_ticket_counter",
		Help: "Value of the durable ticket counter",
	})

	PaperLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "figure_paper_level_percent",
		Help: "Estimated paper left in the printer (0-100)",
	})

	// Store
	CodesRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "figure_codes_remaining",
		Help: "Unclaimed ticket codes in the local pool",
	})

	PendingUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "figure_pending_uploads",
		Help: "Tickets queued for upload",
	})

	StoreGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_store_gc_runs_total",
			Help: "Value log GC runs by result",
		},
		[]string{"result"}, // reclaimed, nothing, error
	)

	OrphanFilesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "figure_store_orphan_files_removed_total",
		Help: "Media files removed because no record referenced them",
	})

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_retries_total",
			Help: "Retried attempts by operation",
		},
		[]string{"operation"},
	)

	RetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_retries_exhausted_total",
			Help: "Operations that failed after every retry",
		},
		[]string{"operation"},
	)

	// Sync and upload
	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_sync_operations_total",
			Help: "Sync engine runs by kind and result",
		},
		[]string{"kind", "result"}, // kind: reconcile, codes, report
	)

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "figure_sync_duration_seconds",
		Help:    "Duration of a reconcile run",
		Buckets: prometheus.DefBuckets,
	})

	MediaDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_media_downloads_total",
			Help: "Template media downloads by result",
		},
		[]string{"result"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_uploads_total",
			Help: "Ticket uploads by path and result",
		},
		[]string{"path", "result"}, // path: immediate, drain; result: success, rejected, corrupt, failed
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "figure_remote_request_duration_seconds",
			Help:    "Remote API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figure_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figure_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Local API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "figure_api_request_duration_seconds",
			Help:    "Local API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "figure_websocket_connections",
		Help: "Connected kiosk websocket clients",
	})
)

// RecordTrigger counts a finished trigger.
func RecordTrigger(outcome string) {
	TriggersTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, started time.Time) {
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// RecordRetry counts one retried attempt.
func RecordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

// RecordRetryExhausted counts an operation that gave up.
func RecordRetryExhausted(operation string) {
	RetriesExhausted.WithLabelValues(operation).Inc()
}

// RecordSync counts a sync engine run.
func RecordSync(kind string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	SyncOperations.WithLabelValues(kind, result).Inc()
}

// RecordUpload counts a ticket upload outcome.
func RecordUpload(path, result string) {
	UploadsTotal.WithLabelValues(path, result).Inc()
}

// RecordGC counts a value log GC run.
func RecordGC(reclaimed bool, err error) {
	switch {
	case err != nil:
		StoreGCRuns.WithLabelValues("error").Inc()
	case reclaimed:
		StoreGCRuns.WithLabelValues("reclaimed").Inc()
	default:
		StoreGCRuns.WithLabelValues("nothing").Inc()
	}
}
