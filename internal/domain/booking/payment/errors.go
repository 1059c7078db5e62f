// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package payment

import "errors"

var (
	// ErrInvalidState means the booking cannot take a payment in its current state.
	ErrInvalidState = errors.New("invalid booking state for payment")
	// ErrSessionExpired is returned when a payment confirmation arrives for a
	// session that was already closed as expired.
	ErrSessionExpired = errors.New("checkout session expired")
	// ErrGateway wraps failures of the external payment provider.
	ErrGateway = errors.New("payment gateway error")
)

// Reconcile sources, used for metrics and logs.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceSweep   = "sweep"
	SourceCreate  = "create"
)

// Reconcile outcomes.
const (
	OutcomeNoop    = "noop"
	OutcomePaid    = "paid"
	OutcomeExpired = "expired"
	OutcomeFailed  = "failed"
)
