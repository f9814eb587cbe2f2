package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the shareable key engine.
type Metrics struct {
	// Keys minted, by origin ("request" or "proactive")
	KeysCreated *prometheus.CounterVec

	// Successful view recordings
	ViewsRecorded prometheus.Counter

	// Keys that exhausted their budget, by path ("view" or "sweep")
	KeysViewedOut *prometheus.CounterVec

	// Creator revocations
	KeysRevoked prometheus.Counter

	// Recipient removals
	KeysRemoved prometheus.Counter

	// Keys whose status a sweep had to repair
	SweepTransitions prometheus.Counter
}

// New creates a Metrics instance with all key engine metrics registered.
func New() *Metrics {
	return &Metrics{
		KeysCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_keys_created_total",
			Help: "Total shareable keys minted by origin",
		}, []string{"origin"}), // origin: "request", "proactive"

		ViewsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_keys_views_recorded_total",
			Help: "Total successful key views",
		}),

		KeysViewedOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verikey_keys_viewed_out_total",
			Help: "Total keys that exhausted their view budget by path",
		}, []string{"path"}), // path: "view", "sweep"

		KeysRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_keys_revoked_total",
			Help: "Total creator-initiated key revocations",
		}),

		KeysRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_keys_removed_total",
			Help: "Total recipient-initiated key removals",
		}),

		SweepTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verikey_keys_sweep_transitions_total",
			Help: "Total status repairs performed by exhaustion sweeps",
		}),
	}
}

// IncrementKeysCreated records a minted key.
func (m *Metrics) IncrementKeysCreated(origin string) {
	if m != nil {
		m.KeysCreated.WithLabelValues(origin).Inc()
	}
}

// IncrementViewsRecorded records a successful view.
func (m *Metrics) IncrementViewsRecorded() {
	if m != nil {
		m.ViewsRecorded.Inc()
	}
}

// IncrementKeysViewedOut records a key exhausting its budget.
func (m *Metrics) IncrementKeysViewedOut(path string) {
	if m != nil {
		m.KeysViewedOut.WithLabelValues(path).Inc()
	}
}

// IncrementKeysRevoked records a revocation.
func (m *Metrics) IncrementKeysRevoked() {
	if m != nil {
		m.KeysRevoked.Inc()
	}
}

// IncrementKeysRemoved records a removal.
func (m *Metrics) IncrementKeysRemoved() {
	if m != nil {
		m.KeysRemoved.Inc()
	}
}

// AddSweepTransitions records status repairs from one sweep pass.
func (m *Metrics) AddSweepTransitions(n int) {
	if m != nil && n > 0 {
		m.SweepTransitions.Add(float64(n))
	}
}
