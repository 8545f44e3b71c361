package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the override module.
// Tracks exception ticket volume by type and dedup hit rate.
type Metrics struct {
	RequestsCreated       *prometheus.CounterVec
	RequestsDeduplicated  prometheus.Counter
	DiscrepanciesDetected prometheus.Counter
}

// New creates a new Metrics instance with all override module metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veristay_override_requests_created_total",
			Help: "Total number of override requests created, by request type",
		}, []string{"request_type"}),
		RequestsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_override_requests_deduplicated_total",
			Help: "Total number of override creations that returned an existing pending request",
		}),
		DiscrepanciesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_unit_count_discrepancies_detected_total",
			Help: "Total number of unit-count discrepancies raised from rent-roll ingestion",
		}),
	}
}

// IncrementCreated records a newly created override request.
func (m *Metrics) IncrementCreated(requestType string) {
	m.RequestsCreated.WithLabelValues(requestType).Inc()
}

// IncrementDeduplicated records a create that hit an existing pending request.
func (m *Metrics) IncrementDeduplicated() {
	m.RequestsDeduplicated.Inc()
}

// IncrementDiscrepancyDetected records a raised unit-count discrepancy.
func (m *Metrics) IncrementDiscrepancyDetected() {
	m.DiscrepanciesDetected.Inc()
}
