// Package metrics exposes Prometheus collectors for federated logins.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Attempts counts validation runs by their final state.
	Attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openid",
		Name:      "attempts_total",
		Help:      "Login attempts by final validation state.",
	}, []string{"state"})

	// Registrations counts accounts created by auto-registration.
	Registrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "openid",
		Name:      "auto_registrations_total",
		Help:      "Accounts created on first successful verification.",
	})

	// ProviderLatency observes begin/complete calls to the provider client.
	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openid",
		Name:      "provider_call_seconds",
		Help:      "Latency of provider client calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call"})
)

// Register adds the collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Attempts, Registrations, ProviderLatency} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
