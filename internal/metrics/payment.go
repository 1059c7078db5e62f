// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_checkout_sessions_total",
		Help: "Checkout session requests by result (created, reused)",
	}, []string{"result"})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_payment_reconciliations_total",
		Help: "Payment reconciliations by source and outcome",
	}, []string{"source", "outcome"})

	gatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_payment_gateway_errors_total",
		Help: "Payment gateway call failures by operation",
	}, []string{"op"})

	sweptSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booksync_checkout_sessions_swept_total",
		Help: "Open checkout sessions expired by the sweeper",
	})
)

func IncCheckoutSession(result string) { checkoutSessionsTotal.WithLabelValues(result).Inc() }

// RecordReconciliation counts a reconcile call. source is webhook, poll or sweep;
// outcome is the applied change or "noop".
func RecordReconciliation(source, outcome string) {
	reconciliationsTotal.WithLabelValues(source, outcome).Inc()
}

func IncGatewayError(op string) { gatewayErrorsTotal.WithLabelValues(op).Inc() }

func AddSweptSessions(n int) { sweptSessionsTotal.Add(float64(n)) }
