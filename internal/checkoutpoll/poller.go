// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package checkoutpoll implements the caller side of payment confirmation:
// a bounded series of point-in-time status reads, classified into an outcome.
// The server never blocks waiting for a payment; all retry policy lives here.
package checkoutpoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/booksync/internal/log"
)

const (
	DefaultAttempts = 5
	DefaultInterval = 2 * time.Second
)

// ErrPaymentTimeout means the attempts ran out before the session resolved.
// It is recoverable: the caller may resume polling later.
var ErrPaymentTimeout = errors.New("payment confirmation timed out")

// Outcome classifies a poll.
type Outcome string

const (
	OutcomeChecking Outcome = "checking"
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeError    Outcome = "error"
)

// Status mirrors the checkout-status response body.
type Status struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// Classify maps one status read to an outcome. Only a paid confirmation is
// success and only an expired or failed session is failed.
func Classify(st Status) Outcome {
	switch {
	case st.PaymentStatus == "paid" || st.Status == "paid":
		return OutcomeSuccess
	case st.Status == "expired", st.PaymentStatus == "expired", st.PaymentStatus == "failed":
		return OutcomeFailed
	default:
		return OutcomeChecking
	}
}

// Fetcher performs a single status read.
type Fetcher interface {
	CheckoutStatus(ctx context.Context, sessionID string) (Status, error)
}

// Result is the final classification.
type Result struct {
	Outcome  Outcome
	Attempts int
	Last     Status
}

// Poller runs the bounded loop.
type Poller struct {
	Fetcher  Fetcher
	Attempts int
	Interval time.Duration
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt, if set, observes each intermediate classification.
	OnAttempt func(attempt int, outcome Outcome)
}

// New returns a Poller with the default 5 x 2s contract.
func New(f Fetcher) *Poller {
	return &Poller{Fetcher: f, Attempts: DefaultAttempts, Interval: DefaultInterval, Sleep: sleepCtx}
}

// Poll reads the session status until it resolves or attempts run out.
// A fetch error ends polling with OutcomeError; exhausting attempts yields
// OutcomeTimeout together with ErrPaymentTimeout.
func (p *Poller) Poll(ctx context.Context, sessionID string) (Result, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	l := log.WithComponentFromContext(ctx, "checkoutpoll")

	var res Result
	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt
		st, err := p.Fetcher.CheckoutStatus(ctx, sessionID)
		if err != nil {
			res.Outcome = OutcomeError
			return res, fmt.Errorf("checkout status %s: %w", sessionID, err)
		}
		res.Last = st
		res.Outcome = Classify(st)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, res.Outcome)
		}
		l.Debug().
			Str(log.FieldSessionID, sessionID).
			Int("attempt", attempt).
			Str("outcome", string(res.Outcome)).
			Msg("checkout status polled")

		if res.Outcome != OutcomeChecking {
			return res, nil
		}
		if attempt < attempts {
			if err := sleep(ctx, p.Interval); err != nil {
				res.Outcome = OutcomeError
				return res, err
			}
		}
	}
	res.Outcome = OutcomeTimeout
	return res, ErrPaymentTimeout
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
