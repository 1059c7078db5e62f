// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var breakerStates = []string{"closed", "open", "half-open"}

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "booksync_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state) by component",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open by component and reason",
	}, []string{"component", "reason"})
)

// SetCircuitBreakerState marks state as the active one for component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(component, s).Set(v)
	}
}

func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}
