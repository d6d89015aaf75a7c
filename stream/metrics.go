package stream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay session outcomes.
const (
	OutcomeCompleted          = "completed"
	OutcomeClientDisconnected = "client_disconnected"
	OutcomeFailed             = "failed"
)

// Metrics holds the Prometheus collectors for resolving and relaying.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeSessions  prometheus.Gauge
	sessions        *prometheus.CounterVec
	bytesRelayed    prometheus.Counter
	resolveDuration prometheus.Histogram
	resolveFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ytaddon",
			Name:      "relay_sessions_active",
			Help:      "Relay sessions currently streaming.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytaddon",
			Name:      "relay_sessions_total",
			Help:      "Finished relay sessions by outcome.",
		}, []string{"outcome"}),
		bytesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ytaddon",
			Name:      "relay_bytes_total",
			Help:      "Bytes written to relay clients.",
		}),
		resolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ytaddon",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving formats.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		resolveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytaddon",
			Name:      "resolve_failures_total",
			Help:      "Failed format resolutions by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) sessionFinished(outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
	m.bytesRelayed.Add(float64(bytes))
}

func (m *Metrics) resolved(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.resolveDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.resolveFailures.WithLabelValues(Kind(err)).Inc()
	}
}
