package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_lightning"

// Metrics holds the Prometheus counters, histograms, and gauges for the lightning engine.
type Metrics struct {
	StrikesReceived prometheus.Counter
	IngestErrors    prometheus.Counter
	EngineRunning   prometheus.Gauge

	// Posting policy.
	GateDecisions   *prometheus.CounterVec // labels: reason
	ThrottleDenials *prometheus.CounterVec // labels: kind={min_interval,hourly_cap}

	// Publish shim.
	Publishes       *prometheus.CounterVec // labels: kind={strike,summary}, outcome={success,error,dropped}
	PublishDuration prometheus.Histogram

	// Storm sessions.
	StormTransitions *prometheus.CounterVec // labels: transition={start,end,summary_due}
	StormActive      prometheus.Gauge
	SummariesEmitted prometheus.Counter

	// Side channels.
	Corroborations  *prometheus.CounterVec // labels: outcome={positive,negative,error}
	TelemetryErrors prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		StrikesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_received_total",
			Help:      "Total strikes accepted into history.",
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Strike payloads rejected by a source.",
		}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_running",
			Help:      "1 when the tick loop is active, 0 when shut down.",
		}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Notification gate decisions by reason.",
		}, []string{"reason"}),
		ThrottleDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_denials_total",
			Help:      "Outbound throttle denials by kind.",
		}, []string{"kind"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish attempts by post kind and outcome.",
		}, []string{"kind", "outcome"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of a publish call including corroboration.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StormTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storm_transitions_total",
			Help:      "Storm session transitions.",
		}, []string{"transition"}),
		StormActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storm_active",
			Help:      "1 while a storm session is active.",
		}),
		SummariesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_emitted_total",
			Help:      "Storm summaries handed to the dispatcher.",
		}),
		Corroborations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corroborations_total",
			Help:      "Weather corroboration lookups by outcome.",
		}, []string{"outcome"}),
		TelemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_errors_total",
			Help:      "Telemetry records that could not be emitted.",
		}),
	}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StrikesReceived,
		m.IngestErrors,
		m.EngineRunning,
		m.GateDecisions,
		m.ThrottleDenials,
		m.Publishes,
		m.PublishDuration,
		m.StormTransitions,
		m.StormActive,
		m.SummariesEmitted,
		m.Corroborations,
		m.TelemetryErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
