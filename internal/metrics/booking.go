// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booksync_bookings_created_total",
		Help: "Total number of bookings created",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_transitions_total",
		Help: "Committed lifecycle transitions by source and target state",
	}, []string{"from", "to"})

	transitionRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_transition_rejections_total",
		Help: "Rejected lifecycle transition attempts by reason",
	}, []string{"reason"})
)

func IncBookingCreated() { bookingsCreatedTotal.Inc() }

// RecordTransition counts one committed transition.
func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTransitionRejected counts a transition attempt that wrote nothing.
func RecordTransitionRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	transitionRejectionsTotal.WithLabelValues(reason).Inc()
}
