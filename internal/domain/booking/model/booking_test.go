// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalStates(t *testing.T) {
	terminal := map[LifecycleStatus]bool{
		StatusCompleted: true,
		StatusRejected:  true,
		StatusCancelled: true,
	}
	for _, s := range AllStatuses {
		assert.Equal(t, terminal[s], s.IsTerminal(), "state %s", s)
		assert.True(t, s.Valid())
	}
	assert.False(t, LifecycleStatus("archived").Valid())
}

func TestReviewEligibleNeedsBothAxes(t *testing.T) {
	tests := []struct {
		status  LifecycleStatus
		payment PaymentStatus
		want    bool
	}{
		{StatusCompleted, PaymentPaid, true},
		{StatusCompleted, PaymentUnpaid, false},
		{StatusCompleted, PaymentSessionCreated, false},
		{StatusStarted, PaymentPaid, false},
		{StatusCancelled, PaymentPaid, false},
	}
	for _, tt := range tests {
		b := &Booking{Status: tt.status, PaymentStatus: tt.payment}
		assert.Equal(t, tt.want, b.ReviewEligible(), "%s/%s", tt.status, tt.payment)
	}
}

func TestCanView(t *testing.T) {
	b := &Booking{CustomerID: "c1", ProviderID: "p1"}

	assert.True(t, b.CanView(Actor{ID: "c1", Role: RoleCustomer}))
	assert.True(t, b.CanView(Actor{ID: "p1", Role: RoleProvider}))
	assert.True(t, b.CanView(Actor{ID: "ops", Role: RoleAdmin}))
	assert.False(t, b.CanView(Actor{ID: "c2", Role: RoleCustomer}))
	assert.False(t, b.CanView(Actor{ID: "c1", Role: RoleProvider}))
	assert.False(t, b.CanView(Actor{ID: "c1", Role: "guest"}))
}

func TestCloneDoesNotShareHistory(t *testing.T) {
	b := &Booking{History: []HistoryEntry{{From: StatusPending, To: StatusAccepted}}}
	c := b.Clone()
	c.History = append(c.History, HistoryEntry{From: StatusAccepted, To: StatusEnRoute})
	c.History[0].To = StatusRejected

	assert.Len(t, b.History, 1)
	assert.Equal(t, StatusAccepted, b.History[0].To)
}

func TestCloneKeepsEmptyHistory(t *testing.T) {
	for name, h := range map[string][]HistoryEntry{"empty": {}, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			c := (&Booking{History: h}).Clone()
			require.NotNil(t, c.History)

			data, err := json.Marshal(c)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"history":[]`)
		})
	}
}

func TestSessionExpiredAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &CheckoutSession{Status: SessionOpen, ExpiresAt: now}

	assert.True(t, s.ExpiredAt(now))
	assert.False(t, s.ExpiredAt(now.Add(-time.Second)))

	s.Status = SessionPaid
	assert.False(t, s.ExpiredAt(now.Add(time.Hour)))
}
