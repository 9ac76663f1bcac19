package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the remote connection collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	reconnects prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dynlist",
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Commands sent to the music server by command and outcome.",
		}, []string{"command", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dynlist",
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Time spent executing commands on the music server connection.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dynlist",
			Subsystem: "remote",
			Name:      "dials_total",
			Help:      "Connections dialed to the music server.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.reconnects)
	}
	return m
}

func (m *Metrics) observe(command string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(command, outcome).Inc()
	m.latency.WithLabelValues(command).Observe(time.Since(started).Seconds())
}

func (m *Metrics) dialed() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
