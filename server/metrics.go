package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of counters/gauges the server updates as connections
// come and go (§11's domain stack). A nil *Metrics anywhere in this
// package is always a valid, inert choice — every call site nil-checks
// before using it — so wiring Prometheus stays optional for embedders
// that have their own metrics pipeline.
type Metrics struct {
	ConnectionsActive   prometheus.Gauge
	ConnectionsRejected prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "boltd",
			Name:      "connections_active",
			Help:      "Number of currently open Bolt connections.",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boltd",
			Name:      "connections_rejected_total",
			Help:      "Connections refused because the session registry was at capacity.",
		}),
	}
	reg.MustRegister(m.ConnectionsActive, m.ConnectionsRejected)
	return m
}
