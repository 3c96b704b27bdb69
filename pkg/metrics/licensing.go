package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LicensingMetrics counts lifecycle outcomes across the engine.
type LicensingMetrics struct {
	activations  *prometheus.CounterVec
	redemptions  *prometheus.CounterVec
	renewals     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	staleMarked  prometheus.Counter
	expiredSwept prometheus.Counter
}

// NewLicensingMetrics registers the licensing counters. A nil registerer yields a no-op recorder.
func NewLicensingMetrics(reg prometheus.Registerer) *LicensingMetrics {
	if reg == nil {
		return &LicensingMetrics{}
	}
	m := &LicensingMetrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_activations_total",
			Help: "Device activation attempts by outcome.",
		}, []string{"outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_redemptions_total",
			Help: "Redeem code attempts by outcome.",
		}, []string{"outcome"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_renewals_total",
			Help: "Subscription renewal attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_license_transitions_total",
			Help: "License status transitions by target status.",
		}, []string{"to"}),
		staleMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensing_activations_stale_total",
			Help: "Activations marked stale by the sweeper.",
		}),
		expiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensing_licenses_expired_total",
			Help: "Licenses moved to EXPIRED by the expiry sweep.",
		}),
	}
	reg.MustRegister(m.activations, m.redemptions, m.renewals, m.transitions, m.staleMarked, m.expiredSwept)
	return m
}

func (m *LicensingMetrics) IncActivation(outcome string) {
	if m == nil || m.activations == nil {
		return
	}
	m.activations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LicensingMetrics) IncRedemption(outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LicensingMetrics) IncRenewal(outcome string) {
	if m == nil || m.renewals == nil {
		return
	}
	m.renewals.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition records a license entering the given status.
func (m *LicensingMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *LicensingMetrics) AddStale(n int) {
	if m == nil || m.staleMarked == nil || n <= 0 {
		return
	}
	m.staleMarked.Add(float64(n))
}

func (m *LicensingMetrics) AddExpired(n int) {
	if m == nil || m.expiredSwept == nil || n <= 0 {
		return
	}
	m.expiredSwept.Add(float64(n))
}
