package resilience

import (
	"github.com/go-i2p/connpool/lib/metrics"
)

// Circuit breaker metrics, labelled by breaker name (the endpoint).
var (
	// CircuitBreakerState is 0 closed, 1 open, 2 half-open.
	CircuitBreakerState = metrics.NewGaugeVec(
		"connpool_circuit_breaker_state",
		"Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		"endpoint",
	)

	CircuitBreakerTrips = metrics.NewCounterVec(
		"connpool_circuit_breaker_trips_total",
		"Total number of times the circuit breaker opened",
		"endpoint",
	)

	CircuitBreakerSuccesses = metrics.NewCounterVec(
		"connpool_circuit_breaker_successes_total",
		"Total successful calls through the circuit breaker",
		"endpoint",
	)

	CircuitBreakerFailures = metrics.NewCounterVec(
		"connpool_circuit_breaker_failures_total",
		"Total failed calls through the circuit breaker",
		"endpoint",
	)

	CircuitBreakerRejections = metrics.NewCounterVec(
		"connpool_circuit_breaker_rejections_total",
		"Total calls rejected by an open circuit breaker",
		"endpoint",
	)
)

func observeTransition(name string, from, to CircuitState) {
	CircuitBreakerState.With(name).Set(int64(to))
	if to == CircuitOpen {
		CircuitBreakerTrips.With(name).Inc()
	}
}
