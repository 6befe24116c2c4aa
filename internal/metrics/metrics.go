// Package metrics provides Prometheus instrumentation for the stream client
// and the pipeline state machine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts decoded stream events by name.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragscope_stream_events_total",
			Help: "Stream events received, by event name",
		},
		[]string{"event"},
	)

	// DecodeErrorsTotal counts events dropped because their payload could not be decoded.
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragscope_stream_decode_errors_total",
			Help: "Stream events dropped on payload decode failure",
		},
		[]string{"event"},
	)

	// ReconnectAttemptsTotal counts scheduled reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragscope_stream_reconnect_attempts_total",
			Help: "Reconnection attempts scheduled after a transport error",
		},
	)

	// ConnectionState is 1 for the client's current connection state, 0 otherwise.
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ragscope_stream_connection_state",
			Help: "Current connection state of the stream client",
		},
		[]string{"state"},
	)

	// RunsTotal counts finished pipeline runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragscope_pipeline_runs_total",
			Help: "Pipeline runs observed to finish, by status",
		},
		[]string{"status"},
	)

	// StageDuration tracks reported stage durations.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragscope_pipeline_stage_duration_seconds",
			Help:    "Per-stage latency reported by the pipeline",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"stage"},
	)
)

// RecordEvent records one decoded stream event.
func RecordEvent(name string) {
	EventsTotal.WithLabelValues(name).Inc()
}

// RecordDecodeError records one dropped event.
func RecordDecodeError(name string) {
	DecodeErrorsTotal.WithLabelValues(name).Inc()
}

// RecordReconnect records one scheduled reconnection.
func RecordReconnect() {
	ReconnectAttemptsTotal.Inc()
}

// SetConnectionState marks current as the active state among all.
func SetConnectionState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// RecordRun records a finished run.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// RecordStage records a stage duration reported in milliseconds.
func RecordStage(stage string, ms float64) {
	if ms < 0 {
		return
	}
	StageDuration.WithLabelValues(stage).Observe(ms / 1000)
}
