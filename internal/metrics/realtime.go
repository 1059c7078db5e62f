// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booksync_broadcasts_total",
		Help: "Status events delivered to subscribers",
	})

	BroadcastDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_broadcast_dropped_total",
		Help: "Status events not delivered, by reason",
	}, []string{"reason"})

	SubscriberEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booksync_subscriber_evictions_total",
		Help: "Subscribers evicted because their buffer was full",
	})

	activeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booksync_realtime_subscribers",
		Help: "Currently connected realtime subscribers",
	})

	relayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksync_relay_errors_total",
		Help: "Cross-instance relay and export failures by sink",
	}, []string{"sink"})
)

// IncBroadcast records n deliveries.
func IncBroadcast(n int) { BroadcastsTotal.Add(float64(n)) }

// IncBroadcastDropped records an event that reached no one. Reasons include
// "stale" for out-of-order versions and "evicted" for full buffers.
func IncBroadcastDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	BroadcastDroppedTotal.WithLabelValues(reason).Inc()
}

func IncSubscriberEviction() { SubscriberEvictionsTotal.Inc() }

func IncSubscribers() { activeSubscribers.Inc() }
func DecSubscribers() { activeSubscribers.Dec() }

func IncRelayError(sink string) { relayErrorsTotal.WithLabelValues(sink).Inc() }
