package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	// Successful registrations
	Registrations prometheus.Counter

	// Authentication attempts by result
	AuthAttempts *prometheus.CounterVec

	// Account deletions by mode
	AccountDeletions *prometheus.CounterVec

	// Screen name changes
	ScreenNameChanges prometheus.Counter
}

// New creates a Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_identity_registrations_total",
			Help: "Total successful account registrations",
		}),

		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_identity_auth_attempts_total",
			Help: "Total authentication attempts by result",
		}, []string{"result"}), // result: "success", "failure"

		AccountDeletions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_identity_account_deletions_total",
			Help: "Total account deletions by mode",
		}, []string{"mode"}), // mode: "soft", "hard"

		ScreenNameChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_identity_screen_name_changes_total",
			Help: "Total screen name changes",
		}),
	}
}

// IncrementRegistrations records a successful registration.
func (m *Metrics) IncrementRegistrations() {
	if m != nil {
		m.Registrations.Inc()
	}
}

// IncrementAuthAttempt records an authentication attempt outcome.
func (m *Metrics) IncrementAuthAttempt(result string) {
	if m != nil {
		m.AuthAttempts.WithLabelValues(result).Inc()
	}
}

// IncrementAccountDeletion records an account deletion.
func (m *Metrics) IncrementAccountDeletion(mode string) {
	if m != nil {
		m.AccountDeletions.WithLabelValues(mode).Inc()
	}
}

// IncrementScreenNameChange records a screen name change.
func (m *Metrics) IncrementScreenNameChange() {
	if m != nil {
		m.ScreenNameChanges.Inc()
	}
}
