package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document module.
// Tracks upload volume and how analysis outcomes split.
type Metrics struct {
	DocumentsUploaded prometheus.Counter
	AnalysisRecorded  *prometheus.CounterVec
	DocumentsSwept    prometheus.Counter
}

// New creates a new Metrics instance with all document module metrics registered.
func New() *Metrics {
	return &Metrics{
		DocumentsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_documents_uploaded_total",
			Help: "Total number of income documents uploaded",
		}),
		AnalysisRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veristay_document_analysis_recorded_total",
			Help: "Total number of analysis results recorded, by resulting status",
		}, []string{"status"}),
		DocumentsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristay_documents_swept_total",
			Help: "Total number of stale processing documents moved to needs-review by the sweep",
		}),
	}
}

// IncrementUploaded records a document upload.
func (m *Metrics) IncrementUploaded() {
	m.DocumentsUploaded.Inc()
}

// IncrementAnalysisRecorded records an applied analysis result.
func (m *Metrics) IncrementAnalysisRecorded(status string) {
	m.AnalysisRecorded.WithLabelValues(status).Inc()
}

// AddSwept records documents forced to needs-review by the staleness sweep.
func (m *Metrics) AddSwept(n int) {
	m.DocumentsSwept.Add(float64(n))
}
