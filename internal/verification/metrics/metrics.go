package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
// Tracks lifecycle transitions and the finalize critical path.
type Metrics struct {
	VerificationsCreated   prometheus.Counter
	VerificationsFinalized prometheus.Counter
	VerificationsReverted  prometheus.Counter
	FinalizeDuration       prometheus.Histogram
}

// New creates a new Metrics instance with all verification module metrics registered.
func New() *Metrics {
	return &Metrics{
		VerificationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_verifications_created_total",
			Help: "Total number of verification periods opened",
		}),
		VerificationsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_verifications_finalized_total",
			Help: "Total number of verification periods finalized",
		}),
		VerificationsReverted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_verifications_reverted_total",
			Help: "Total number of finalized verifications reverted to in-progress",
		}),
		FinalizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veristay_verification_finalize_duration_seconds",
			Help:    "Duration of Finalize operations (aggregate settlement check path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successfully opened verification period.
func (m *Metrics) IncrementCreated() {
	m.VerificationsCreated.Inc()
}

// IncrementFinalized records a successful finalization.
func (m *Metrics) IncrementFinalized() {
	m.VerificationsFinalized.Inc()
}

// IncrementReverted records a FINALIZED verification dropping back to
// IN_PROGRESS after a resident unsettled.
func (m *Metrics) IncrementReverted() {
	m.VerificationsReverted.Inc()
}

// ObserveFinalize records the duration of a Finalize operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFinalize(start time.Time) {
	m.FinalizeDuration.Observe(time.Since(start).Seconds())
}
