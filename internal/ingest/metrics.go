package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Received   *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Duplicates *prometheus.CounterVec
	Applied    *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_webhooks_received_total",
			Help: "Inbound webhook deliveries, before verification.",
		}, []string{"provider"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_webhooks_rejected_total",
			Help: "Deliveries rejected before normalization.",
		}, []string{"provider", "reason"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_events_dropped_total",
			Help: "Deliveries whose native event type has no canonical mapping.",
		}, []string{"provider"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_events_duplicate_total",
			Help: "Canonical events suppressed by the idempotency layer.",
		}, []string{"provider"}),
		Applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_events_applied_total",
			Help: "Canonical events applied to the ledger.",
		}, []string{"provider", "module"}),
	}
	if reg != nil {
		reg.MustRegister(m.Received, m.Rejected, m.Dropped, m.Duplicates, m.Applied)
	}
	return m
}
