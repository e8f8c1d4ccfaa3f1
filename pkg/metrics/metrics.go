// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks panel API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panel_request_duration_seconds",
			Help:    "Panel API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total panel API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_requests_total",
			Help: "Total panel API requests",
		},
		[]string{"method", "path", "status"},
	)

	// FramesReceivedTotal tracks inbound channel frames by routing outcome.
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_frames_received_total",
			Help: "Inbound frames by routing outcome",
		},
		[]string{"outcome"},
	)

	// FramesDroppedTotal tracks inbound frames that were discarded.
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_frames_dropped_total",
			Help: "Inbound frames dropped by reason",
		},
		[]string{"reason"},
	)

	// FramesSentTotal tracks outbound channel frames.
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_frames_sent_total",
			Help: "Outbound frames by action",
		},
		[]string{"action"},
	)

	// FramesSkippedTotal tracks outbound frames not written because the channel was not open.
	FramesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_frames_skipped_total",
			Help: "Outbound frames skipped because the channel was not open",
		},
		[]string{"action"},
	)

	// ConnectionState reports the current channel state as a number (0 uninstantiated .. 4 closed).
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "multichat_connection_state",
			Help: "Channel lifecycle state",
		},
	)

	// SessionsActive tracks sessions in the panel.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "multichat_sessions_active",
			Help: "Number of chat sessions in the panel",
		},
	)

	// SessionsRunning tracks sessions waiting for a final response.
	SessionsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "multichat_sessions_running",
			Help: "Number of chat sessions with a run in flight",
		},
	)

	// RunsTotal tracks run requests dispatched.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_runs_total",
			Help: "Run requests dispatched by response mode",
		},
		[]string{"mode"},
	)

	// RunDuration tracks the time from dispatch to final response.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multichat_run_duration_seconds",
			Help:    "Time from run dispatch to final response",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model"},
	)

	// FeedbackTotal tracks feedback submissions.
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_feedback_total",
			Help: "Feedback submissions by result",
		},
		[]string{"result"},
	)

	// CatalogFetchTotal tracks catalog list fetches.
	CatalogFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichat_catalog_fetch_total",
			Help: "Catalog list fetches by list and status",
		},
		[]string{"list", "status"},
	)

	// PanelStreamsActive tracks active panel SSE streams.
	PanelStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panel_streams_active",
			Help: "Number of active panel SSE streams",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordDrop counts a dropped inbound frame.
func RecordDrop(reason string) {
	FramesDroppedTotal.WithLabelValues(reason).Inc()
	FramesReceivedTotal.WithLabelValues("dropped").Inc()
}

// RecordRunFinished records the duration of a completed run.
func RecordRunFinished(model string, seconds float64) {
	RunDuration.WithLabelValues(model).Observe(seconds)
}

// IncrementPanelStreams increments the active panel stream count.
func IncrementPanelStreams() {
	PanelStreamsActive.Inc()
}

// DecrementPanelStreams decrements the active panel stream count.
func DecrementPanelStreams() {
	PanelStreamsActive.Dec()
}
