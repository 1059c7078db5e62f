// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mockgw is an in-process payment gateway for development and tests.
// Sessions stay open until marked or until their TTL passes.
package mockgw

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
)

var ErrUnknownSession = errors.New("mockgw: unknown session")

type session struct {
	req       ports.CheckoutRequest
	status    model.ExternalStatus
	expiresAt time.Time
}

// Gateway implements ports.Gateway and ports.WebhookVerifier.
type Gateway struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	secret   string
	now      func() time.Time
}

func New(ttl time.Duration, webhookSecret string) *Gateway {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Gateway{
		sessions: make(map[string]*session),
		ttl:      ttl,
		secret:   webhookSecret,
		now:      time.Now,
	}
}

func (g *Gateway) CreateSession(_ context.Context, req ports.CheckoutRequest) (ports.GatewaySession, error) {
	if req.AmountMinor <= 0 {
		return ports.GatewaySession{}, fmt.Errorf("mockgw: amount must be positive, got %d", req.AmountMinor)
	}
	id := "cs_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	exp := g.now().Add(g.ttl)

	g.mu.Lock()
	g.sessions[id] = &session{req: req, status: model.ExternalOpen, expiresAt: exp}
	g.mu.Unlock()

	return ports.GatewaySession{
		ID:        id,
		URL:       strings.TrimRight(req.OriginURL, "/") + "/mock-checkout/" + id,
		ExpiresAt: exp,
	}, nil
}

func (g *Gateway) SessionStatus(_ context.Context, id string) (model.ExternalStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return "", ErrUnknownSession
	}
	if s.status == model.ExternalOpen && !g.now().Before(s.expiresAt) {
		s.status = model.ExternalExpired
	}
	return s.status, nil
}

// Mark sets the gateway-side outcome of an open session, as a payer would.
func (g *Gateway) Mark(id string, status model.ExternalStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if s.status != model.ExternalOpen && s.status != model.ExternalProcessing {
		return fmt.Errorf("mockgw: session %s already %s", id, s.status)
	}
	s.status = status
	return nil
}

type webhookBody struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id"`
	Status    model.ExternalStatus `json:"status"`
}

// ParseWebhook accepts {"session_id","status"} bodies whose signature equals
// the configured secret.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (ports.WebhookEvent, bool, error) {
	if g.secret == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(g.secret)) != 1 {
		return ports.WebhookEvent{}, false, errors.New("mockgw: bad webhook signature")
	}
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return ports.WebhookEvent{}, false, fmt.Errorf("mockgw: decode webhook: %w", err)
	}
	ev := ports.WebhookEvent{ID: body.ID, Type: "mock." + string(body.Status), SessionID: body.SessionID, Status: body.Status}
	switch body.Status {
	case model.ExternalPaid, model.ExternalExpired, model.ExternalFailed:
		return ev, body.SessionID != "", nil
	}
	return ev, false, nil
}

var (
	_ ports.Gateway         = (*Gateway)(nil)
	_ ports.WebhookVerifier = (*Gateway)(nil)
)
