// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stripegw adapts Stripe Checkout to the booking payment ports.
package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/platform/httpx"
)

// Config holds Stripe credentials and endpoints.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base, for tests and proxies.
	APIURL string
	// SessionTTL is requested as the session's expiry; Stripe allows 30m to 24h.
	SessionTTL time.Duration
	Timeout    time.Duration
	MaxRetries int64
}

// Gateway creates and inspects Stripe Checkout sessions.
type Gateway struct {
	api           *client.API
	webhookSecret string
	ttl           time.Duration
	now           func() time.Time
}

func New(cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := httpx.NewClient(cfg.Timeout)

	backendCfg := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        hc,
			MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
		}
		return bc
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg()),
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Gateway{api: api, webhookSecret: cfg.WebhookSecret, ttl: cfg.SessionTTL, now: time.Now}, nil
}

// CreateSession opens a one-line-item payment session for the booking.
func (g *Gateway) CreateSession(ctx context.Context, req ports.CheckoutRequest) (ports.GatewaySession, error) {
	origin := strings.TrimRight(req.OriginURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(origin + "/payment-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(origin + "/payment-cancelled"),
		ClientReferenceID:  stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if g.ttl > 0 {
		params.ExpiresAt = stripe.Int64(g.now().Add(g.ttl).Unix())
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("user_id", req.CustomerID)
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return ports.GatewaySession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return ports.GatewaySession{
		ID:        s.ID,
		URL:       s.URL,
		ExpiresAt: time.Unix(s.ExpiresAt, 0).UTC(),
	}, nil
}

// SessionStatus maps Stripe's status pair onto the external status.
func (g *Gateway) SessionStatus(ctx context.Context, sessionID string) (model.ExternalStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("stripe: get checkout session %s: %w", sessionID, err)
	}
	return externalStatus(s), nil
}

func externalStatus(s *stripe.CheckoutSession) model.ExternalStatus {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return model.ExternalPaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return model.ExternalExpired
	case s.Status == stripe.CheckoutSessionStatusComplete:
		return model.ExternalProcessing
	default:
		return model.ExternalOpen
	}
}

// ParseWebhook verifies the Stripe-Signature header and maps checkout events.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (ports.WebhookEvent, bool, error) {
	if g.webhookSecret == "" {
		return ports.WebhookEvent{}, false, errors.New("stripe: webhook secret not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return ports.WebhookEvent{}, false, fmt.Errorf("stripe: verify webhook: %w", err)
	}
	return mapEvent(ev)
}

func mapEvent(ev stripe.Event) (ports.WebhookEvent, bool, error) {
	out := ports.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil || !strings.HasPrefix(out.Type, "checkout.session.") {
		return out, false, nil
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return out, false, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	out.SessionID = s.ID

	switch out.Type {
	case "checkout.session.completed":
		// Delayed payment methods complete unpaid and settle later.
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return out, false, nil
		}
		out.Status = model.ExternalPaid
	case "checkout.session.async_payment_succeeded":
		out.Status = model.ExternalPaid
	case "checkout.session.expired":
		out.Status = model.ExternalExpired
	case "checkout.session.async_payment_failed":
		out.Status = model.ExternalFailed
	default:
		return out, false, nil
	}
	return out, true, nil
}

var (
	_ ports.Gateway         = (*Gateway)(nil)
	_ ports.WebhookVerifier = (*Gateway)(nil)
)
