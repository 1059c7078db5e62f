// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errBoom = errors.New("boom")

func fail() error { return errBoom }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 30*time.Second, WithClock(clock))

	for range 2 {
		assert.ErrorIs(t, cb.Execute(fail, nil), errBoom)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(fail, nil), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)

	require.Error(t, cb.Execute(fail, nil))
	require.NoError(t, cb.Execute(ok, nil))
	require.Error(t, cb.Execute(fail, nil))
	assert.Equal(t, StateClosed, cb.State(), "failures must be consecutive")
}

func TestCircuitBreaker_HalfOpenSingleTrial(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))
	require.Error(t, cb.Execute(fail, nil))
	require.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)

	// While the trial runs, other callers are rejected.
	err := cb.Execute(func() error {
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.ErrorIs(t, cb.Execute(ok, nil), ErrCircuitOpen)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))
	require.Error(t, cb.Execute(fail, nil))

	clock.now = clock.now.Add(11 * time.Second)
	require.ErrorIs(t, cb.Execute(fail, nil), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ok, nil), ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	ignore := func(err error) bool { return errors.Is(err, context.Canceled) }

	err := cb.Execute(func() error { return context.Canceled }, ignore)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

type flakyGateway struct {
	err   error
	calls int
}

func (f *flakyGateway) CreateSession(context.Context, ports.CheckoutRequest) (ports.GatewaySession, error) {
	f.calls++
	if f.err != nil {
		return ports.GatewaySession{}, f.err
	}
	return ports.GatewaySession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil
}

func (f *flakyGateway) SessionStatus(context.Context, string) (model.ExternalStatus, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return model.ExternalPaid, nil
}

func TestGateway_FailsFastWhenOpen(t *testing.T) {
	inner := &flakyGateway{err: errBoom}
	gw := NewGateway(inner, NewCircuitBreaker("payment_gateway_test", 2, time.Minute))
	ctx := context.Background()

	for range 2 {
		_, err := gw.SessionStatus(ctx, "cs_1")
		require.ErrorIs(t, err, errBoom)
	}
	_, err := gw.CreateSession(ctx, ports.CheckoutRequest{BookingID: "b1"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestGateway_PassesThrough(t *testing.T) {
	inner := &flakyGateway{}
	gw := NewGateway(inner, NewCircuitBreaker("payment_gateway_test", 2, time.Minute))

	sess, err := gw.CreateSession(context.Background(), ports.CheckoutRequest{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)

	st, err := gw.SessionStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.ExternalPaid, st)
}
