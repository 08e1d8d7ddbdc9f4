// Package metrics exposes Prometheus counters for the ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// Metrics records mutation outcomes and snapshot refreshes.
type Metrics struct {
	reg *prometheus.Registry

	visitsCreated  *prometheus.CounterVec
	mutationErrors *prometheus.CounterVec
	records        prometheus.Gauge
	today          prometheus.Gauge
	recompute      prometheus.Histogram
}

// New registers the ledger metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		visitsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arm_visits_created_total",
			Help: "Visitors recorded, weighted by group size",
		}, []string{"class"}),
		mutationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arm_mutation_errors_total",
			Help: "Rejected or failed create, update and delete requests",
		}, []string{"op"}),
		records: f.NewGauge(prometheus.GaugeOpts{
			Name: "arm_snapshot_records",
			Help: "Records in the current snapshot",
		}),
		today: f.NewGauge(prometheus.GaugeOpts{
			Name: "arm_today_visits",
			Help: "Weighted visits recorded today",
		}),
		recompute: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arm_snapshot_recompute_seconds",
			Help:    "Time to reload the record set and recompute statistics",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

// VisitCreated counts a new record by visitor class.
func (m *Metrics) VisitCreated(class visit.Class, weight int) {
	m.visitsCreated.WithLabelValues(string(class)).Add(float64(weight))
}

// MutationFailed counts a failed operation.
func (m *Metrics) MutationFailed(op string) {
	m.mutationErrors.WithLabelValues(op).Inc()
}

// SnapshotComputed updates the snapshot gauges.
func (m *Metrics) SnapshotComputed(records, today int, took time.Duration) {
	m.records.Set(float64(records))
	m.today.Set(float64(today))
	m.recompute.Observe(took.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
