package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for rent-roll ingestion.
type Metrics struct {
	SnapshotsIngested prometheus.Counter
	RowsIngested      prometheus.Counter
	LeasesLinked      prometheus.Counter
}

// New creates a new Metrics instance with all rent-roll metrics registered.
func New() *Metrics {
	return &Metrics{
		SnapshotsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_rentroll_snapshots_ingested_total",
			Help: "Total number of rent-roll snapshots ingested",
		}),
		RowsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_rentroll_rows_ingested_total",
			Help: "Total number of rent-roll rows processed",
		}),
		LeasesLinked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_rentroll_leases_linked_total",
			Help: "Total number of leases linked to a tenancy during ingestion",
		}),
	}
}

// IncrementSnapshotsIngested records a completed ingestion.
func (m *Metrics) IncrementSnapshotsIngested() {
	m.SnapshotsIngested.Inc()
}

// AddRowsIngested records processed rows from one snapshot.
func (m *Metrics) AddRowsIngested(n int) {
	m.RowsIngested.Add(float64(n))
}

// AddLeasesLinked records tenancy links made during one ingestion.
func (m *Metrics) AddLeasesLinked(n int) {
	m.LeasesLinked.Add(float64(n))
}
