// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/booksync/internal/domain/booking/payment"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/log"
	pnet "github.com/ManuGH/booksync/internal/platform/net"
)

type createCheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var bookingID, origin string
	if err := bindQuery(r, "booking_id", true, true, &bookingID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := bindQuery(r, "origin_url", true, true, &origin); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if bookingID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "booking_id is required")
		return
	}
	// The gateway redirects the payer here; configured origins close the open redirect.
	if !pnet.OriginAllowed(origin, s.cfg.AllowedOrigins) {
		writeError(w, http.StatusBadRequest, "invalid_input", "origin_url must be an allowed absolute http(s) URL")
		return
	}

	ctx := log.ContextWithBookingID(r.Context(), bookingID)
	cs, err := s.deps.Payments.CreateCheckoutSession(ctx, bookingID, actorFrom(r), origin)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createCheckoutResponse{URL: cs.URL, SessionID: cs.ID})
}

func (s *Server) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if err := bindPath(r, "session_id", &sessionID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Payments.PollSessionStatus(r.Context(), sessionID, actorFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleWebhook acknowledges every authentic event it cannot act on, so the
// gateway stops redelivering. Only transient failures answer 5xx.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unreadable body")
		return
	}
	ev, ok, err := s.deps.Webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Warn().Err(err).Msg("webhook rejected")
		writeError(w, http.StatusBadRequest, "invalid_signature", "webhook could not be verified")
		return
	}
	l := log.WithComponentFromContext(r.Context(), "api").With().
		Str("webhook_id", ev.ID).
		Str("webhook_type", ev.Type).
		Str(log.FieldSessionID, ev.SessionID).
		Logger()
	if !ok {
		l.Debug().Msg("webhook ignored")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	_, err = s.deps.Payments.Reconcile(r.Context(), ev.SessionID, ev.Status)
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrSessionExpired), errors.Is(err, store.ErrNotFound):
		l.Warn().Err(err).Msg("webhook not applicable")
	default:
		l.Error().Err(err).Msg("webhook reconcile failed")
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
