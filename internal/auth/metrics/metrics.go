package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for session issuance and revocation.
type Metrics struct {
	// Sessions opened through login
	Logins prometheus.Counter

	// Access tokens minted through refresh rotation
	Refreshes prometheus.Counter

	// Sessions closed through logout
	Logouts prometheus.Counter

	// Refresh exchanges rejected, by reason
	RefreshRejections *prometheus.CounterVec
}

// New creates a Metrics instance with all auth metrics registered.
func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_auth_logins_total",
			Help: "Total successful logins",
		}),

		Refreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_auth_refreshes_total",
			Help: "Total successful refresh token rotations",
		}),

		Logouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_auth_logouts_total",
			Help: "Total logouts",
		}),

		RefreshRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_auth_refresh_rejections_total",
			Help: "Total rejected refresh exchanges by reason",
		}, []string{"reason"}), // reason: "unknown", "revoked", "expired"
	}
}

// IncrementLogins records a successful login.
func (m *Metrics) IncrementLogins() {
	if m != nil {
		m.Logins.Inc()
	}
}

// IncrementRefreshes records a successful rotation.
func (m *Metrics) IncrementRefreshes() {
	if m != nil {
		m.Refreshes.Inc()
	}
}

// IncrementLogouts records a logout.
func (m *Metrics) IncrementLogouts() {
	if m != nil {
		m.Logouts.Inc()
	}
}

// IncrementRefreshRejections records a rejected refresh exchange.
func (m *Metrics) IncrementRefreshRejections(reason string) {
	if m != nil {
		m.RefreshRejections.WithLabelValues(reason).Inc()
	}
}
