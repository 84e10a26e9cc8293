package devicecall

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fleetcore_devicecall"

// Call outcomes recorded by Metrics.
const (
	OutcomeReplied    = "replied"
	OutcomeTimeout    = "timeout"
	OutcomeSendFailed = "send_failed"
	OutcomeCancelled  = "cancelled"
	OutcomeForgotten  = "fire_and_forget"
	OutcomeLateReply  = "late_reply"
)

// Metrics is a prometheus.Collector for the executor.
// A nil *Metrics records nothing.
type Metrics struct {
	pending  prometheus.Gauge
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics returns a new Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "pending_calls",
				Help:      "The number of calls waiting for a device reply.",
			},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "outcomes_total",
				Help:      "The number of device calls by outcome.",
			}, []string{"outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "call_duration_seconds",
				Help:      "The time from publish to resolution of a device call.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			}, []string{"outcome"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.pending.Describe(ch)
	m.outcomes.Describe(ch)
	m.latency.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.pending.Collect(ch)
	m.outcomes.Collect(ch)
	m.latency.Collect(ch)
}

func (m *Metrics) pendingAdd(delta float64) {
	if m == nil {
		return
	}
	m.pending.Add(delta)
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	if elapsed >= 0 {
		m.latency.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) count(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
