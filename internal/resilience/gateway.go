// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"context"
	"errors"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
)

// Gateway fails fast while the payment provider is unhealthy. Caller
// cancellations do not count against the provider.
type Gateway struct {
	next ports.Gateway
	cb   *CircuitBreaker
}

func NewGateway(next ports.Gateway, cb *CircuitBreaker) *Gateway {
	return &Gateway{next: next, cb: cb}
}

func (g *Gateway) CreateSession(ctx context.Context, req ports.CheckoutRequest) (ports.GatewaySession, error) {
	var out ports.GatewaySession
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.next.CreateSession(ctx, req)
		return err
	}, isCallerError)
	return out, err
}

func (g *Gateway) SessionStatus(ctx context.Context, sessionID string) (model.ExternalStatus, error) {
	var out model.ExternalStatus
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.next.SessionStatus(ctx, sessionID)
		return err
	}, isCallerError)
	return out, err
}

func isCallerError(err error) bool {
	return errors.Is(err, context.Canceled)
}
