package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client runtime.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	Turns          *prometheus.CounterVec
	BackendErrors  *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec
	RecordingLive  prometheus.Gauge
	PlaybackLive   prometheus.Gauge

	turnStages *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of roleplay sessions currently open.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by speaker.",
		}, []string{"speaker"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend call failures by endpoint and error kind.",
		}, []string{"endpoint", "kind"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_ms",
			Help:      "Backend request latency in milliseconds by endpoint.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"endpoint"}),
		RecordingLive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_live",
			Help:      "1 while a microphone capture is in progress.",
		}),
		PlaybackLive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_live",
			Help:      "1 while a reply payload is being played.",
		}),
		turnStages: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveBackendLatency(endpoint string, d time.Duration) {
	m.BackendLatency.WithLabelValues(endpoint).Observe(float64(d.Milliseconds()))
}

// ObserveTurnStage records one stage duration into the rolling window
// served at the perf endpoint.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	m.turnStages.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	m.turnStages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotTurnStages() LatencySnapshot {
	return m.turnStages.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	m.turnStages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
