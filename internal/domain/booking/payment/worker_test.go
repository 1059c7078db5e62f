// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/domain/booking/lifecycle"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
)

var (
	t0       = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	customer = model.Actor{ID: "cust-1", Role: model.RoleCustomer}
	provider = model.Actor{ID: "prov-1", Role: model.RoleProvider}
	admin    = model.Actor{ID: "ops", Role: model.RoleAdmin}
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    atomic.Int32
	release  chan struct{}
	statuses map[string]model.ExternalStatus
	statErr  error
	lastReq  ports.CheckoutRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]model.ExternalStatus)}
}

func (g *fakeGateway) CreateSession(ctx context.Context, req ports.CheckoutRequest) (ports.GatewaySession, error) {
	n := g.calls.Add(1)
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ports.GatewaySession{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastReq = req
	id := fmt.Sprintf("cs_%d", n)
	g.statuses[id] = model.ExternalOpen
	return ports.GatewaySession{ID: id, URL: "https://pay.example/" + id, ExpiresAt: t0.Add(30 * time.Minute)}, nil
}

func (g *fakeGateway) SessionStatus(_ context.Context, id string) (model.ExternalStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statErr != nil {
		return "", g.statErr
	}
	return g.statuses[id], nil
}

func (g *fakeGateway) set(id string, st model.ExternalStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = st
}

type countingPublisher struct {
	mu     sync.Mutex
	events []model.StatusEvent
}

func (p *countingPublisher) Publish(_ context.Context, ev model.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *countingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	w     *Worker
	st    *store.MemoryStore
	gw    *fakeGateway
	pub   *countingPublisher
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateBooking(context.Background(), &model.Booking{
		ID:            "bk-1",
		ServiceID:     "deep-clean",
		CustomerID:    "cust-1",
		ProviderID:    "prov-1",
		Date:          "2025-03-10",
		Time:          "14:00",
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentUnpaid,
		AmountMinor:   4999,
		Currency:      "usd",
		Version:       1,
		History:       []model.HistoryEntry{},
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}))
	f := &fixture{st: st, gw: newFakeGateway(), pub: &countingPublisher{}, clock: &clock{now: t0}}
	f.w = NewWorker(st, f.gw, f.pub, nil)
	f.w.SetClock(f.clock.Now)
	return f
}

func (f *fixture) booking(t *testing.T) *model.Booking {
	t.Helper()
	b, err := f.st.GetBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	return b
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newFixture(t)
	cs, err := f.w.CreateCheckoutSession(context.Background(), "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	assert.Equal(t, "cs_1", cs.ID)
	assert.Equal(t, model.SessionOpen, cs.Status)
	assert.Equal(t, int64(4999), cs.AmountMinor)
	assert.Equal(t, "Booking for 2025-03-10 14:00", f.gw.lastReq.ProductName)
	assert.Equal(t, "https://app.example", f.gw.lastReq.OriginURL)

	b := f.booking(t)
	assert.Equal(t, model.PaymentSessionCreated, b.PaymentStatus)
	assert.Equal(t, int64(2), b.Version)
	assert.Equal(t, model.StatusPending, b.Status, "lifecycle untouched")
	assert.Equal(t, 1, f.pub.Len())
}

func TestCreateCheckoutSessionReusesOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)
	second, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), f.gw.calls.Load())
	assert.Equal(t, int64(2), f.booking(t).Version)
}

func TestCreateCheckoutSessionConcurrentCollapse(t *testing.T) {
	f := newFixture(t)
	f.gw.release = make(chan struct{})

	const callers = 10
	var wg sync.WaitGroup
	ids := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cs, err := f.w.CreateCheckoutSession(context.Background(), "bk-1", customer, "https://app.example")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			ids[i] = cs.ID
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.gw.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.gw.calls.Load())
	for _, id := range ids {
		assert.Equal(t, "cs_1", id)
	}
	assert.Equal(t, int64(2), f.booking(t).Version)
}

func TestCreateCheckoutSessionCallerCancelDoesNotFailOthers(t *testing.T) {
	f := newFixture(t)
	f.gw.release = make(chan struct{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.w.CreateCheckoutSession(ctxA, "bk-1", customer, "https://app.example")
		errA <- err
	}()
	require.Eventually(t, func() bool { return f.gw.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		cs  *model.CheckoutSession
		err error
	}
	resB := make(chan result, 1)
	go func() {
		cs, err := f.w.CreateCheckoutSession(context.Background(), "bk-1", customer, "https://app.example")
		resB <- result{cs, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(f.gw.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "cs_1", b.cs.ID)
	assert.Equal(t, int32(1), f.gw.calls.Load())
	assert.Equal(t, model.PaymentSessionCreated, f.booking(t).PaymentStatus)
}

func TestCreateCheckoutSessionAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, a := range []model.Actor{provider, admin, {ID: "cust-2", Role: model.RoleCustomer}} {
		_, err := f.w.CreateCheckoutSession(ctx, "bk-1", a, "https://app.example")
		assert.ErrorIs(t, err, lifecycle.ErrForbidden, a.ID)
	}
	_, err := f.w.CreateCheckoutSession(ctx, "missing", customer, "https://app.example")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, int32(0), f.gw.calls.Load())
}

func TestCreateCheckoutSessionInvalidStates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *model.Booking)
	}{
		{"cancelled", func(b *model.Booking) { b.Status = model.StatusCancelled }},
		{"rejected", func(b *model.Booking) { b.Status = model.StatusRejected }},
		{"already paid", func(b *model.Booking) { b.PaymentStatus = model.PaymentPaid }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.st.UpdateBooking(context.Background(), "bk-1", 0, func(cur *model.Booking) (*model.Booking, error) {
				nb := cur.Clone()
				tt.mutate(nb)
				nb.Version++
				return nb, nil
			})
			require.NoError(t, err)

			_, err = f.w.CreateCheckoutSession(context.Background(), "bk-1", customer, "https://app.example")
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, int32(0), f.gw.calls.Load())
		})
	}
}

func TestCreateCheckoutSessionAllowedAfterCompletion(t *testing.T) {
	f := newFixture(t)
	_, err := f.st.UpdateBooking(context.Background(), "bk-1", 0, func(cur *model.Booking) (*model.Booking, error) {
		nb := cur.Clone()
		nb.Status = model.StatusCompleted
		nb.Version++
		return nb, nil
	})
	require.NoError(t, err)

	_, err = f.w.CreateCheckoutSession(context.Background(), "bk-1", customer, "https://app.example")
	assert.NoError(t, err)
}

func TestCreateCheckoutSessionReplacesExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	second, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := f.st.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, old.Status)

	b := f.booking(t)
	assert.Equal(t, model.PaymentSessionCreated, b.PaymentStatus)
	assert.Equal(t, int64(4), b.Version, "create, expire, create")
	assert.Equal(t, 3, f.pub.Len())
}

func TestCreateCheckoutSessionKeepsSettlingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	f.gw.set(first.ID, model.ExternalProcessing)
	f.clock.Advance(time.Hour)
	again, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int32(1), f.gw.calls.Load())
}

func TestCreateCheckoutSessionOverdueButPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	f.gw.set(first.ID, model.ExternalPaid)
	f.clock.Advance(time.Hour)
	_, err = f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, model.PaymentPaid, f.booking(t).PaymentStatus)
}

func TestReconcileProcessingIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)
	before := f.pub.Len()

	b, err := f.w.Reconcile(ctx, cs.ID, model.ExternalProcessing)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSessionCreated, b.PaymentStatus)
	assert.Equal(t, before, f.pub.Len())
}

func TestReconcilePaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	b, err := f.w.Reconcile(ctx, cs.ID, model.ExternalPaid)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, int64(3), b.Version)
	assert.Equal(t, 2, f.pub.Len())

	b, err = f.w.Reconcile(ctx, cs.ID, model.ExternalPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Version, "repeat is a no-op")
	assert.Equal(t, 2, f.pub.Len(), "repeat publishes nothing")

	got, err := f.st.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPaid, got.Status)
	assert.False(t, got.ClosedAt.IsZero())

	_, err = f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReconcileExpiredAndFailed(t *testing.T) {
	tests := []struct {
		ext  model.ExternalStatus
		want model.PaymentStatus
	}{
		{model.ExternalExpired, model.PaymentExpired},
		{model.ExternalFailed, model.PaymentFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.ext), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			cs, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
			require.NoError(t, err)

			b, err := f.w.Reconcile(ctx, cs.ID, tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.PaymentStatus)
			assert.Equal(t, model.StatusPending, b.Status)

			got, err := f.st.GetSession(ctx, cs.ID)
			require.NoError(t, err)
			assert.Equal(t, model.SessionExpired, got.Status)

			_, err = f.w.Reconcile(ctx, cs.ID, model.ExternalPaid)
			assert.ErrorIs(t, err, ErrSessionExpired)

			next, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
			require.NoError(t, err)
			assert.NotEqual(t, cs.ID, next.ID)
		})
	}
}

func TestReconcileOpenIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	b, err := f.w.Reconcile(ctx, cs.ID, model.ExternalOpen)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Version)
	assert.Equal(t, 1, f.pub.Len())

	_, err = f.w.Reconcile(ctx, cs.ID, "refunded")
	assert.Error(t, err)
	_, err = f.w.Reconcile(ctx, "missing", model.ExternalPaid)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPollSessionStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	res, err := f.w.PollSessionStatus(ctx, cs.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, PollResult{BookingID: "bk-1", Status: model.SessionOpen, PaymentStatus: model.PaymentSessionCreated}, res)

	f.gw.set(cs.ID, model.ExternalPaid)
	res, err = f.w.PollSessionStatus(ctx, cs.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPaid, res.Status)
	assert.Equal(t, model.PaymentPaid, res.PaymentStatus)

	_, err = f.w.PollSessionStatus(ctx, cs.ID, provider)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestPollSessionStatusGatewayDownPastExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs, err := f.w.CreateCheckoutSession(ctx, "bk-1", customer, "https://app.example")
	require.NoError(t, err)

	f.gw.statErr = errors.New("connection refused")
	res, err := f.w.PollSessionStatus(ctx, cs.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, model.SessionOpen, res.Status)

	f.clock.Advance(time.Hour)
	res, err = f.w.PollSessionStatus(ctx, cs.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, res.Status)
	assert.Equal(t, model.PaymentExpired, res.PaymentStatus)
}
