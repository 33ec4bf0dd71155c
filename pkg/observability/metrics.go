package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle metrics
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_state_transitions_total",
		Help: "Total number of transaction state transitions",
	}, []string{
		"provider", // phonepe, paypal, cashfree
		"state",    // resulting unified state
	})

	initiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiations_total",
		Help: "Total number of initiation attempts",
	}, []string{
		"provider",
		"outcome", // created, validation_error, provider_error
	})

	providerCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_call_errors_total",
		Help: "Total number of failed provider calls (network/5xx), distinct from payment failures",
	}, []string{
		"provider",
		"operation", // initiate, query_status
	})

	// Side-effect metrics
	sideEffectDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_dispatch_total",
		Help: "Total number of side-effect dispatches (one per transaction reaching success)",
	}, []string{"provider"})

	sideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_failures_total",
		Help: "Failed side-effect executions; these are logged and lost, not retried",
	}, []string{
		"effect", // notify, archive
	})
)

// RecordTransition records a state transition
func RecordTransition(provider, state string) {
	transitionsTotal.WithLabelValues(provider, state).Inc()
}

// RecordInitiation records an initiation attempt outcome
func RecordInitiation(provider, outcome string) {
	initiationsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordProviderCallError records a failed provider call
func RecordProviderCallError(provider, operation string) {
	providerCallErrorsTotal.WithLabelValues(provider, operation).Inc()
}

// RecordSideEffectDispatch records one dispatcher invocation
func RecordSideEffectDispatch(provider string) {
	sideEffectDispatchTotal.WithLabelValues(provider).Inc()
}

// RecordSideEffectFailure records a failed notify/archive execution
func RecordSideEffectFailure(effect string) {
	sideEffectFailuresTotal.WithLabelValues(effect).Inc()
}
