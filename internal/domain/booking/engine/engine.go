// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine runs booking commands: it validates through the lifecycle
// guard, commits with compare-and-set and publishes the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/booksync/internal/domain/booking/lifecycle"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
	"github.com/ManuGH/booksync/internal/platform/keymutex"
	"github.com/ManuGH/booksync/internal/telemetry"
)

// ErrInvalidInput marks a request that failed validation before touching the store.
var ErrInvalidInput = errors.New("invalid input")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	defaultListLimit = 100
	maxListLimit     = 500
)

// Engine serializes mutations per booking. The same keymutex.Map must be
// shared with the payment worker so events leave in commit order.
type Engine struct {
	store   store.StateStore
	pub     ports.Publisher
	catalog ports.Catalog
	locks   *keymutex.Map
	tracer  trace.Tracer

	now   func() time.Time
	newID func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides booking id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func New(st store.StateStore, pub ports.Publisher, cat ports.Catalog, locks *keymutex.Map, opts ...Option) *Engine {
	if pub == nil {
		pub = ports.NopPublisher{}
	}
	if locks == nil {
		locks = keymutex.New()
	}
	e := &Engine{
		store:   st,
		pub:     pub,
		catalog: cat,
		locks:   locks,
		tracer:  telemetry.Tracer("booksync/engine"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateRequest is the customer's booking request.
type CreateRequest struct {
	ServiceID string
	Date      string
	Time      string
}

// CreateBooking records a pending booking priced from the catalog.
func (e *Engine) CreateBooking(ctx context.Context, actor model.Actor, req CreateRequest) (*model.Booking, error) {
	if actor.Role != model.RoleCustomer || actor.ID == "" {
		return nil, fmt.Errorf("%w: only customers create bookings", lifecycle.ErrForbidden)
	}
	if req.ServiceID == "" {
		return nil, fmt.Errorf("%w: service_id is required", ErrInvalidInput)
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if _, err := time.Parse(timeLayout, req.Time); err != nil {
		return nil, fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}

	svc, err := e.catalog.Lookup(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, ports.ErrUnknownService) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	now := e.now().UTC()
	b := &model.Booking{
		ID:            e.newID(),
		ServiceID:     svc.ID,
		CustomerID:    actor.ID,
		ProviderID:    svc.ProviderID,
		Date:          req.Date,
		Time:          req.Time,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentUnpaid,
		AmountMinor:   svc.AmountMinor,
		Currency:      svc.Currency,
		Version:       1,
		History:       []model.HistoryEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	unlock := e.locks.Lock(b.ID)
	defer unlock()
	if err := e.store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	metrics.IncBookingCreated()
	e.pub.Publish(ctx, b.Event())

	l := log.WithComponentFromContext(ctx, "engine")
	l.Info().
		Str(log.FieldEvent, "booking.created").
		Str(log.FieldBookingID, b.ID).
		Str(log.FieldServiceID, b.ServiceID).
		Str(log.FieldActorID, actor.ID).
		Msg("booking created")
	return b, nil
}

// RequestTransition moves a booking to target on behalf of actor.
// expectedVersion 0 means the version observed at load time.
func (e *Engine) RequestTransition(ctx context.Context, bookingID string, actor model.Actor, target model.LifecycleStatus, expectedVersion int64) (*model.Booking, error) {
	ctx, span := e.tracer.Start(ctx, "booking.transition",
		trace.WithAttributes(telemetry.TransitionAttributes(bookingID, "", string(target), expectedVersion)...),
		trace.WithAttributes(telemetry.ActorAttributes(actor.ID, string(actor.Role))...),
	)
	defer span.End()
	ctx = log.ContextWithBookingID(ctx, bookingID)
	l := log.WithComponentFromContext(ctx, "engine")

	unlock := e.locks.Lock(bookingID)
	defer unlock()

	cur, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// Ownership comes before the version pin.
	if err := lifecycle.CheckOwner(cur, actor, target); err != nil {
		e.rejected(ctx, span, err)
		return nil, err
	}
	switch {
	case expectedVersion == 0:
		expectedVersion = cur.Version
	case expectedVersion != cur.Version:
		// The caller decided on an outdated snapshot; it must re-fetch.
		e.rejected(ctx, span, store.ErrStaleVersion)
		return nil, store.ErrStaleVersion
	}
	if err := lifecycle.Check(cur, actor, target); err != nil {
		e.rejected(ctx, span, err)
		return nil, err
	}

	now := e.now()
	next, err := e.store.UpdateBooking(ctx, bookingID, expectedVersion, func(latest *model.Booking) (*model.Booking, error) {
		return lifecycle.Apply(latest, actor, target, now)
	})
	if err != nil {
		e.rejected(ctx, span, err)
		return nil, err
	}

	metrics.RecordTransition(string(cur.Status), string(next.Status))
	e.pub.Publish(ctx, next.Event())

	l.Info().
		Str(log.FieldEvent, "booking.transition").
		Str(log.FieldOldState, string(cur.Status)).
		Str(log.FieldNewState, string(next.Status)).
		Str(log.FieldActorRole, string(actor.Role)).
		Int64(log.FieldVersion, next.Version).
		Msg("booking transitioned")
	return next, nil
}

func (e *Engine) rejected(ctx context.Context, span trace.Span, err error) {
	reason := "error"
	var te *lifecycle.TransitionError
	switch {
	case errors.As(err, &te):
		reason = te.Reason
	case errors.Is(err, store.ErrStaleVersion):
		reason = "stale_version"
	}
	metrics.RecordTransitionRejected(reason)
	span.SetAttributes(telemetry.ErrorAttributes(err, reason)...)
	span.SetStatus(codes.Error, reason)

	l := log.WithComponentFromContext(ctx, "engine")
	l.Warn().
		Err(err).
		Str(log.FieldEvent, "booking.transition_rejected").
		Str(log.FieldReason, reason).
		Msg("transition rejected")
}

// GetBooking returns the authoritative snapshot if actor may view it.
// Non-viewers get ErrNotFound so ids cannot be enumerated.
func (e *Engine) GetBooking(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.CanView(actor) {
		return nil, store.ErrNotFound
	}
	return b, nil
}

// ListQuery narrows ListBookings.
type ListQuery struct {
	Statuses []model.LifecycleStatus
	Limit    int
}

// ListBookings returns the actor's bookings: customers see their own,
// providers their assigned requests, admins everything.
func (e *Engine) ListBookings(ctx context.Context, actor model.Actor, q ListQuery) ([]*model.Booking, error) {
	for _, st := range q.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, st)
		}
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	f := store.BookingFilter{Statuses: q.Statuses, Limit: limit}
	switch actor.Role {
	case model.RoleCustomer:
		f.CustomerID = actor.ID
	case model.RoleProvider:
		f.ProviderID = actor.ID
	case model.RoleAdmin:
	default:
		return nil, lifecycle.ErrForbidden
	}
	return e.store.ListBookings(ctx, f)
}

// Ping reports store readiness.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
