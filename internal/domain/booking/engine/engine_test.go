// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/catalog"
	"github.com/ManuGH/booksync/internal/domain/booking/lifecycle"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
)

var (
	customer = model.Actor{ID: "cust-1", Role: model.RoleCustomer}
	stranger = model.Actor{ID: "cust-2", Role: model.RoleCustomer}
	provider = model.Actor{ID: "prov-1", Role: model.RoleProvider}
	admin    = model.Actor{ID: "ops", Role: model.RoleAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.StatusEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []model.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.StatusEvent(nil), p.events...)
}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *recordingPublisher) {
	t.Helper()
	cat, err := catalog.NewStatic([]catalog.Entry{
		{ID: "deep-clean", ProviderID: "prov-1", Price: "49.99", Currency: "usd"},
	}, "usd")
	require.NoError(t, err)

	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	seq := 0
	e := New(st, pub, cat, nil,
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("bk-%d", seq) }),
	)
	return e, st, pub
}

func createBooking(t *testing.T, e *Engine) *model.Booking {
	t.Helper()
	b, err := e.CreateBooking(context.Background(), customer, CreateRequest{ServiceID: "deep-clean", Date: "2025-03-10", Time: "14:00"})
	require.NoError(t, err)
	return b
}

func TestCreateBooking(t *testing.T) {
	e, _, pub := newTestEngine(t)
	b := createBooking(t, e)

	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, model.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, int64(4999), b.AmountMinor)
	assert.Equal(t, "usd", b.Currency)
	assert.Equal(t, "prov-1", b.ProviderID)
	assert.Empty(t, b.History)
	require.Len(t, pub.Events(), 1)
}

func TestCreateBookingValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateBooking(ctx, provider, CreateRequest{ServiceID: "deep-clean", Date: "2025-03-10", Time: "14:00"})
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)

	tests := []CreateRequest{
		{ServiceID: "", Date: "2025-03-10", Time: "14:00"},
		{ServiceID: "deep-clean", Date: "10/03/2025", Time: "14:00"},
		{ServiceID: "deep-clean", Date: "2025-03-10", Time: "2pm"},
		{ServiceID: "unknown", Date: "2025-03-10", Time: "14:00"},
	}
	for _, req := range tests {
		_, err := e.CreateBooking(ctx, customer, req)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", req)
	}
}

func TestRequestTransitionHappyPath(t *testing.T) {
	e, _, pub := newTestEngine(t)
	ctx := context.Background()
	b := createBooking(t, e)

	for i, to := range []model.LifecycleStatus{model.StatusAccepted, model.StatusEnRoute, model.StatusStarted, model.StatusCompleted} {
		next, err := e.RequestTransition(ctx, b.ID, provider, to, 0)
		require.NoError(t, err, to)
		assert.Equal(t, to, next.Status)
		assert.Equal(t, int64(i+2), next.Version)
		assert.Len(t, next.History, i+1)
	}

	events := pub.Events()
	require.Len(t, events, 5)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Version, events[i-1].Version, "events in commit order")
	}
	assert.Equal(t, model.StatusCompleted, events[4].Status)
}

func TestRequestTransitionRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   []model.LifecycleStatus
		actor   model.Actor
		target  model.LifecycleStatus
		wantErr error
		reason  string
	}{
		{"customer cannot accept", nil, customer, model.StatusAccepted, lifecycle.ErrForbidden, lifecycle.ForbiddenRoleNotPermitted},
		{"stranger cannot cancel", nil, stranger, model.StatusCancelled, lifecycle.ErrForbidden, lifecycle.ForbiddenNotOwner},
		{"admin never transitions", nil, admin, model.StatusCancelled, lifecycle.ErrForbidden, lifecycle.ForbiddenNotOwner},
		{"other provider", nil, model.Actor{ID: "prov-9", Role: model.RoleProvider}, model.StatusAccepted, lifecycle.ErrForbidden, lifecycle.ForbiddenNotOwner},
		{"skip ahead", nil, provider, model.StatusStarted, lifecycle.ErrInvalidTransition, lifecycle.ForbiddenOutOfOrder},
		{"cancel en-route", []model.LifecycleStatus{model.StatusAccepted, model.StatusEnRoute}, customer, model.StatusCancelled, lifecycle.ErrInvalidTransition, lifecycle.ForbiddenOutOfOrder},
		{"terminal absorbs", []model.LifecycleStatus{model.StatusRejected}, provider, model.StatusAccepted, lifecycle.ErrInvalidTransition, lifecycle.ForbiddenTerminalAbsorbing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, st, pub := newTestEngine(t)
			ctx := context.Background()
			b := createBooking(t, e)
			for _, s := range tt.setup {
				_, err := e.RequestTransition(ctx, b.ID, provider, s, 0)
				require.NoError(t, err)
			}
			before, err := st.GetBooking(ctx, b.ID)
			require.NoError(t, err)
			published := len(pub.Events())

			_, err = e.RequestTransition(ctx, b.ID, tt.actor, tt.target, 0)
			require.ErrorIs(t, err, tt.wantErr)
			var te *lifecycle.TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.reason, te.Reason)

			after, err := st.GetBooking(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version, "rejected attempts write nothing")
			assert.Len(t, after.History, len(before.History))
			assert.Len(t, pub.Events(), published, "rejected attempts publish nothing")
		})
	}
}

func TestRequestTransitionStaleVersion(t *testing.T) {
	e, _, pub := newTestEngine(t)
	ctx := context.Background()
	b := createBooking(t, e)

	_, err := e.RequestTransition(ctx, b.ID, provider, model.StatusAccepted, 1)
	require.NoError(t, err)

	_, err = e.RequestTransition(ctx, b.ID, customer, model.StatusCancelled, 1)
	assert.ErrorIs(t, err, store.ErrStaleVersion)
	assert.Len(t, pub.Events(), 2)
}

func TestRequestTransitionNonOwnerWithStaleVersion(t *testing.T) {
	e, _, pub := newTestEngine(t)
	ctx := context.Background()
	b := createBooking(t, e)

	_, err := e.RequestTransition(ctx, b.ID, provider, model.StatusAccepted, 1)
	require.NoError(t, err)

	for _, a := range []model.Actor{stranger, admin} {
		_, err = e.RequestTransition(ctx, b.ID, a, model.StatusCancelled, 1)
		assert.ErrorIs(t, err, lifecycle.ErrForbidden, a.ID)
		assert.NotErrorIs(t, err, store.ErrStaleVersion, a.ID)
	}
	assert.Len(t, pub.Events(), 2)
}

func TestRequestTransitionNotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.RequestTransition(context.Background(), "missing", provider, model.StatusAccepted, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentAcceptAndCancelSingleWinner(t *testing.T) {
	e, st, pub := newTestEngine(t)
	ctx := context.Background()
	b := createBooking(t, e)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = e.RequestTransition(ctx, b.ID, provider, model.StatusAccepted, 1)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = e.RequestTransition(ctx, b.ID, customer, model.StatusCancelled, 1)
	}()
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, store.ErrStaleVersion)
	}
	assert.Equal(t, 1, wins)

	got, err := st.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.History, 1)
	assert.Len(t, pub.Events(), 2)
}

func TestGetBookingVisibility(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	b := createBooking(t, e)

	for _, a := range []model.Actor{customer, provider, admin} {
		got, err := e.GetBooking(ctx, b.ID, a)
		require.NoError(t, err, a.Role)
		assert.Equal(t, b.ID, got.ID)
	}
	_, err := e.GetBooking(ctx, b.ID, stranger)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListBookingsScopedByRole(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	first := createBooking(t, e)
	createBooking(t, e)
	_, err := e.RequestTransition(ctx, first.ID, provider, model.StatusAccepted, 0)
	require.NoError(t, err)

	mine, err := e.ListBookings(ctx, customer, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := e.ListBookings(ctx, stranger, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)

	accepted, err := e.ListBookings(ctx, provider, ListQuery{Statuses: []model.LifecycleStatus{model.StatusAccepted}})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, first.ID, accepted[0].ID)

	all, err := e.ListBookings(ctx, admin, ListQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = e.ListBookings(ctx, admin, ListQuery{Statuses: []model.LifecycleStatus{"paused"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
