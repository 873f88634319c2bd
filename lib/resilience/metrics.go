package resilience

import (
	"github.com/satfetch/satfetch/lib/metrics"
)

// Circuit breaker metrics.
var (
	// CircuitBreakerState is the state of the most recently transitioned
	// breaker: 0 = closed, 1 = open, 2 = half-open.
	CircuitBreakerState = metrics.NewGauge(
		"satfetch_circuit_breaker_state",
		"Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
	)
	CircuitBreakerTrips = metrics.NewCounter(
		"satfetch_circuit_breaker_trips_total",
		"Total number of times circuit breakers have opened",
	)
	CircuitBreakerFailures = metrics.NewCounter(
		"satfetch_circuit_breaker_failures_total",
		"Total failed calls through circuit breakers",
	)
	CircuitBreakerRejections = metrics.NewCounter(
		"satfetch_circuit_breaker_rejections_total",
		"Total calls rejected by open circuit breakers",
	)
)

func recordTransition(to CircuitState) {
	CircuitBreakerState.Set(int64(to))
	if to == CircuitOpen {
		CircuitBreakerTrips.Inc()
	}
}
