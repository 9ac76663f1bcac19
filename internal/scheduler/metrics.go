package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scheduler collectors. A nil *Metrics records nothing.
type Metrics struct {
	cycles   *prometheus.CounterVec
	duration prometheus.Histogram
	running  prometheus.Gauge
	skipped  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dynlist",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Evaluation cycles by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dynlist",
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of evaluation cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dynlist",
			Subsystem: "scheduler",
			Name:      "running_cycles",
			Help:      "Evaluation cycles currently running.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dynlist",
			Subsystem: "scheduler",
			Name:      "skipped_triggers_total",
			Help:      "Manual triggers ignored because the playlist was already running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.duration, m.running, m.skipped)
	}
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) finished(trigger string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.running.Dec()
	m.cycles.WithLabelValues(trigger, outcome).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) skip() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
