// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ports declares the collaborators the booking core depends on.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

// Publisher receives every committed booking mutation in commit order.
// Delivery is best effort; implementations swallow and count their failures.
type Publisher interface {
	Publish(ctx context.Context, ev model.StatusEvent)
}

// MultiPublisher fans one event out to several publishers in order.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev model.StatusEvent) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.StatusEvent) {}

// CheckoutRequest describes the payment a gateway session must collect.
type CheckoutRequest struct {
	BookingID   string
	CustomerID  string
	AmountMinor int64
	Currency    string
	ProductName string
	// OriginURL is where the gateway redirects the payer afterwards.
	OriginURL string
}

// GatewaySession is the gateway's view of a freshly created session.
type GatewaySession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// Gateway is the external payment provider.
type Gateway interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (GatewaySession, error)
	// SessionStatus reports the provider's current view of the session.
	SessionStatus(ctx context.Context, sessionID string) (model.ExternalStatus, error)
}

// ErrUnknownService is returned by a Catalog for ids it does not list.
var ErrUnknownService = errors.New("unknown service")

// Service is a bookable offering with its assigned provider and price.
type Service struct {
	ID          string
	Name        string
	ProviderID  string
	AmountMinor int64
	Currency    string
}

// Catalog resolves service ids at booking creation.
type Catalog interface {
	Lookup(ctx context.Context, serviceID string) (Service, error)
}

// WebhookEvent is a verified gateway notification about a session.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	Status    model.ExternalStatus
}

// WebhookVerifier authenticates and decodes gateway callbacks. ok is false
// for authentic events that carry nothing to reconcile.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (ev WebhookEvent, ok bool, err error)
}
