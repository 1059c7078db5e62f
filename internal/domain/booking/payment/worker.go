// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package payment reconciles external checkout sessions with booking records.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/booksync/internal/domain/booking/lifecycle"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
	"github.com/ManuGH/booksync/internal/platform/keymutex"
	"github.com/ManuGH/booksync/internal/telemetry"
)

// sharedCheckoutTimeout bounds a collapsed checkout call. It outlives any
// single caller so one disconnect does not fail the others.
const sharedCheckoutTimeout = 30 * time.Second

// Worker owns the payment axis of bookings.
type Worker struct {
	store   store.StateStore
	gateway ports.Gateway
	pub     ports.Publisher
	locks   *keymutex.Map
	tracer  trace.Tracer
	now     func() time.Time

	sf singleflight.Group
}

// NewWorker builds a Worker. locks must be the map the engine uses.
func NewWorker(st store.StateStore, gw ports.Gateway, pub ports.Publisher, locks *keymutex.Map) *Worker {
	if pub == nil {
		pub = ports.NopPublisher{}
	}
	if locks == nil {
		locks = keymutex.New()
	}
	return &Worker{
		store:   st,
		gateway: gw,
		pub:     pub,
		locks:   locks,
		tracer:  telemetry.Tracer("booksync/payment"),
		now:     time.Now,
	}
}

// SetClock overrides time.Now for tests.
func (w *Worker) SetClock(now func() time.Time) { w.now = now }

// CreateCheckoutSession returns the booking's open session, creating one at
// the gateway if none is usable. Concurrent calls for one booking share a
// single gateway call.
func (w *Worker) CreateCheckoutSession(ctx context.Context, bookingID string, actor model.Actor, originURL string) (*model.CheckoutSession, error) {
	ctx, span := w.tracer.Start(ctx, "payment.create_checkout",
		trace.WithAttributes(telemetry.TransitionAttributes(bookingID, "", "", 0)...))
	defer span.End()

	b, err := w.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleCustomer || actor.ID != b.CustomerID {
		return nil, fmt.Errorf("%w: only the booking's customer may pay", lifecycle.ErrForbidden)
	}

	ch := w.sf.DoChan(bookingID, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCheckoutTimeout)
		defer cancel()
		return w.createOrReuse(sctx, bookingID, originURL)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
		return nil, res.Err
	}
	v := res.Val
	span.SetAttributes(telemetry.PaymentAttributes(v.(*model.CheckoutSession).ID, "", "")...)
	if res.Shared {
		l := log.WithComponentFromContext(ctx, "payment")
		l.Debug().
			Str(log.FieldBookingID, bookingID).
			Msg("checkout request collapsed into in-flight call")
	}
	cs := *v.(*model.CheckoutSession)
	return &cs, nil
}

func (w *Worker) createOrReuse(ctx context.Context, bookingID, originURL string) (*model.CheckoutSession, error) {
	l := log.WithComponentFromContext(ctx, "payment")

	b, err := w.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(b); err != nil {
		return nil, err
	}

	open, err := w.store.OpenSession(ctx, bookingID)
	switch {
	case err == nil && open.ExpiredAt(w.now()):
		ext := w.overdueStatus(ctx, open.ID)
		if ext == model.ExternalProcessing {
			// The customer already paid with a delayed method.
			metrics.IncCheckoutSession("reused")
			return open, nil
		}
		if _, _, rerr := w.reconcile(ctx, open.ID, ext, SourceCreate); rerr != nil {
			return nil, rerr
		}
		if ext == model.ExternalPaid {
			return nil, fmt.Errorf("%w: booking is paid", ErrInvalidState)
		}
	case err == nil:
		metrics.IncCheckoutSession("reused")
		return open, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	gs, err := w.gateway.CreateSession(ctx, ports.CheckoutRequest{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		AmountMinor: b.AmountMinor,
		Currency:    b.Currency,
		ProductName: fmt.Sprintf("Booking for %s %s", b.Date, b.Time),
		OriginURL:   originURL,
	})
	if err != nil {
		metrics.IncGatewayError("create_session")
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	now := w.now().UTC()
	cs := &model.CheckoutSession{
		ID:          gs.ID,
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		Status:      model.SessionOpen,
		URL:         gs.URL,
		AmountMinor: b.AmountMinor,
		Currency:    b.Currency,
		CreatedAt:   now,
		ExpiresAt:   gs.ExpiresAt.UTC(),
	}

	unlock := w.locks.Lock(bookingID)
	defer unlock()
	next, err := w.store.CreateSession(ctx, cs, func(cur *model.Booking) (*model.Booking, error) {
		if err := checkPayable(cur); err != nil {
			return nil, err
		}
		nb := cur.Clone()
		nb.PaymentStatus = model.PaymentSessionCreated
		nb.Version++
		nb.UpdatedAt = now
		return nb, nil
	})
	if errors.Is(err, store.ErrSessionConflict) {
		// Another instance won; hand out its session.
		existing, oerr := w.store.OpenSession(ctx, bookingID)
		if oerr != nil {
			return nil, oerr
		}
		metrics.IncCheckoutSession("reused")
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.IncCheckoutSession("created")
	w.pub.Publish(ctx, next.Event())
	l.Info().
		Str(log.FieldEvent, "payment.session_created").
		Str(log.FieldBookingID, bookingID).
		Str(log.FieldSessionID, cs.ID).
		Int64(log.FieldVersion, next.Version).
		Msg("checkout session created")
	return cs, nil
}

func checkPayable(b *model.Booking) error {
	switch {
	case b.Status == model.StatusRejected || b.Status == model.StatusCancelled:
		return fmt.Errorf("%w: booking is %s", ErrInvalidState, b.Status)
	case b.PaymentStatus == model.PaymentPaid:
		return fmt.Errorf("%w: booking already paid", ErrInvalidState)
	}
	return nil
}

// PollResult is the point-in-time payment view of a session.
type PollResult struct {
	BookingID     string              `json:"booking_id"`
	Status        model.SessionStatus `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
}

// PollSessionStatus reads a session for the booking's customer or an admin.
// An open session is checked against the gateway once and reconciled.
func (w *Worker) PollSessionStatus(ctx context.Context, sessionID string, actor model.Actor) (PollResult, error) {
	cs, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return PollResult{}, err
	}
	if actor.Role != model.RoleAdmin && (actor.Role != model.RoleCustomer || actor.ID != cs.CustomerID) {
		return PollResult{}, lifecycle.ErrForbidden
	}

	if cs.Status == model.SessionOpen {
		ext, gerr := w.gateway.SessionStatus(ctx, sessionID)
		switch {
		case gerr != nil:
			metrics.IncGatewayError("session_status")
			l := log.WithComponentFromContext(ctx, "payment")
			l.Warn().Err(gerr).
				Str(log.FieldSessionID, sessionID).
				Msg("gateway status lookup failed, serving stored state")
			if cs.ExpiredAt(w.now()) {
				ext = model.ExternalExpired
			} else {
				ext = model.ExternalOpen
			}
		case ext == model.ExternalOpen && cs.ExpiredAt(w.now()):
			ext = model.ExternalExpired
		}
		if ext != model.ExternalOpen && ext != model.ExternalProcessing {
			if _, _, err := w.reconcile(ctx, sessionID, ext, SourcePoll); err != nil && !errors.Is(err, ErrSessionExpired) {
				return PollResult{}, err
			}
		}
	}

	cs, err = w.store.GetSession(ctx, sessionID)
	if err != nil {
		return PollResult{}, err
	}
	b, err := w.store.GetBooking(ctx, cs.BookingID)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{BookingID: b.ID, Status: cs.Status, PaymentStatus: b.PaymentStatus}, nil
}

// Reconcile applies an external status to a session. It is idempotent:
// repeating a status that was already applied changes and publishes nothing.
func (w *Worker) Reconcile(ctx context.Context, sessionID string, ext model.ExternalStatus) (*model.Booking, error) {
	b, _, err := w.reconcile(ctx, sessionID, ext, SourceWebhook)
	return b, err
}

func (w *Worker) reconcile(ctx context.Context, sessionID string, ext model.ExternalStatus, source string) (*model.Booking, string, error) {
	ctx, span := w.tracer.Start(ctx, "payment.reconcile",
		trace.WithAttributes(telemetry.PaymentAttributes(sessionID, string(ext), "")...))
	defer span.End()

	switch ext {
	case model.ExternalOpen, model.ExternalProcessing, model.ExternalPaid, model.ExternalExpired, model.ExternalFailed:
	default:
		return nil, "", fmt.Errorf("unknown external status %q", ext)
	}

	cs, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	unlock := w.locks.Lock(cs.BookingID)
	defer unlock()

	now := w.now().UTC()
	outcome := OutcomeNoop
	b, _, err := w.store.UpdateSession(ctx, sessionID, func(cur *model.Booking, s *model.CheckoutSession) (*model.Booking, *model.CheckoutSession, error) {
		outcome = OutcomeNoop
		var pay model.PaymentStatus
		switch ext {
		case model.ExternalPaid:
			switch s.Status {
			case model.SessionPaid:
				return nil, nil, nil
			case model.SessionExpired:
				return nil, nil, fmt.Errorf("%w: session %s", ErrSessionExpired, s.ID)
			}
			s.Status, pay, outcome = model.SessionPaid, model.PaymentPaid, OutcomePaid
		case model.ExternalExpired:
			if s.Status != model.SessionOpen {
				return nil, nil, nil
			}
			s.Status, pay, outcome = model.SessionExpired, model.PaymentExpired, OutcomeExpired
		case model.ExternalFailed:
			if s.Status != model.SessionOpen {
				return nil, nil, nil
			}
			s.Status, pay, outcome = model.SessionExpired, model.PaymentFailed, OutcomeFailed
		default:
			return nil, nil, nil
		}
		s.ClosedAt = now

		nb := cur.Clone()
		nb.PaymentStatus = pay
		nb.Version++
		nb.UpdatedAt = now
		return nb, s, nil
	})
	metrics.RecordReconciliation(source, outcomeLabel(outcome, err))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}
	span.SetAttributes(telemetry.PaymentAttributes("", "", outcome)...)
	if outcome == OutcomeNoop {
		return b, outcome, nil
	}

	w.pub.Publish(ctx, b.Event())
	l := log.WithComponentFromContext(ctx, "payment")
	l.Info().
		Str(log.FieldEvent, "payment.reconciled").
		Str(log.FieldBookingID, b.ID).
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldPaymentStatus, string(b.PaymentStatus)).
		Str(log.FieldReason, source).
		Int64(log.FieldVersion, b.Version).
		Msg("payment reconciled")
	return b, outcome, nil
}

func outcomeLabel(outcome string, err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case err != nil:
		return "error"
	}
	return outcome
}

// overdueStatus asks the gateway about a session past its local expiry.
// Unreachable or still-open sessions count as expired. Any other status,
// ExternalProcessing included, is returned as the gateway reports it.
func (w *Worker) overdueStatus(ctx context.Context, sessionID string) model.ExternalStatus {
	ext, err := w.gateway.SessionStatus(ctx, sessionID)
	if err != nil || ext == model.ExternalOpen {
		return model.ExternalExpired
	}
	return ext
}
