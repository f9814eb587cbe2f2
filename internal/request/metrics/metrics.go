package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the request engine.
type Metrics struct {
	// Requests created
	RequestsCreated prometheus.Counter

	// Requests settled, by outcome
	RequestsSettled *prometheus.CounterVec

	// Notification delivery attempts by result
	Notifications *prometheus.CounterVec
}

// New creates a Metrics instance with all request engine metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_requests_created_total",
			Help: "Total information requests created",
		}),

		RequestsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_requests_settled_total",
			Help: "Total requests settled by outcome",
		}, []string{"outcome"}), // outcome: "completed", "denied", "cancelled"

		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_request_notifications_total",
			Help: "Total request notification attempts by result",
		}, []string{"result"}), // result: "sent", "failed", "skipped"
	}
}

// IncrementRequestsCreated records a created request.
func (m *Metrics) IncrementRequestsCreated() {
	if m != nil {
		m.RequestsCreated.Inc()
	}
}

// IncrementRequestsSettled records a settled request.
func (m *Metrics) IncrementRequestsSettled(outcome string) {
	if m != nil {
		m.RequestsSettled.WithLabelValues(outcome).Inc()
	}
}

// IncrementNotification records a notification attempt outcome.
func (m *Metrics) IncrementNotification(result string) {
	if m != nil {
		m.Notifications.WithLabelValues(result).Inc()
	}
}
