package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification pipeline.
type Metrics struct {
	// Document submissions by document type
	Submissions *prometheus.CounterVec

	// Review decisions by outcome
	Reviews *prometheus.CounterVec
}

// New creates a Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_verification_submissions_total",
			Help: "Total verification document submissions by document type",
		}, []string{"document_type"}),

		Reviews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_verification_reviews_total",
			Help: "Total verification review decisions by outcome",
		}, []string{"outcome"}), // outcome: "approved", "rejected"
	}
}

// IncrementSubmissions records a document submission.
func (m *Metrics) IncrementSubmissions(documentType string) {
	if m != nil {
		m.Submissions.WithLabelValues(documentType).Inc()
	}
}

// IncrementReviews records a review decision.
func (m *Metrics) IncrementReviews(outcome string) {
	if m != nil {
		m.Reviews.WithLabelValues(outcome).Inc()
	}
}
