// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mockgw

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
)

func TestSessionLifecycle(t *testing.T) {
	g := New(10*time.Minute, "secret")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	gs, err := g.CreateSession(ctx, ports.CheckoutRequest{BookingID: "bk-1", AmountMinor: 100, Currency: "usd", OriginURL: "https://app.example/"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gs.ID, "cs_mock_"))
	assert.Equal(t, "https://app.example/mock-checkout/"+gs.ID, gs.URL)
	assert.Equal(t, now.Add(10*time.Minute), gs.ExpiresAt)

	st, err := g.SessionStatus(ctx, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalOpen, st)

	require.NoError(t, g.Mark(gs.ID, model.ExternalPaid))
	st, err = g.SessionStatus(ctx, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalPaid, st)
	assert.Error(t, g.Mark(gs.ID, model.ExternalExpired))

	_, err = g.SessionStatus(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	g := New(time.Minute, "")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	gs, err := g.CreateSession(context.Background(), ports.CheckoutRequest{AmountMinor: 1})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	st, err := g.SessionStatus(context.Background(), gs.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalExpired, st)
}

func TestCreateSessionRejectsZeroAmount(t *testing.T) {
	_, err := New(0, "").CreateSession(context.Background(), ports.CheckoutRequest{})
	assert.Error(t, err)
}

func TestParseWebhook(t *testing.T) {
	g := New(0, "secret")

	ev, ok, err := g.ParseWebhook([]byte(`{"id":"evt_1","session_id":"cs_1","status":"paid"}`), "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ports.WebhookEvent{ID: "evt_1", Type: "mock.paid", SessionID: "cs_1", Status: model.ExternalPaid}, ev)

	_, ok, err = g.ParseWebhook([]byte(`{"session_id":"cs_1","status":"open"}`), "secret")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = g.ParseWebhook([]byte(`{}`), "wrong")
	assert.Error(t, err)
	_, _, err = New(0, "").ParseWebhook([]byte(`{}`), "")
	assert.Error(t, err, "unsigned webhooks are refused")
}
