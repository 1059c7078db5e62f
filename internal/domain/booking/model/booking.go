// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// Actor is the authenticated identity performing an operation.
// It is always passed explicitly; the core never reads ambient identity.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// HistoryEntry records one accepted lifecycle transition.
type HistoryEntry struct {
	At        time.Time       `json:"at"`
	ActorRole Role            `json:"actor_role"`
	ActorID   string          `json:"actor_id"`
	From      LifecycleStatus `json:"from"`
	To        LifecycleStatus `json:"to"`
}

// Booking is one scheduled engagement between a customer and a provider.
type Booking struct {
	ID         string `json:"id"`
	ServiceID  string `json:"service_id"`
	CustomerID string `json:"customer_id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`

	Status        LifecycleStatus `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`

	// AmountMinor is the price in the currency's smallest unit, fixed at creation.
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`

	Version int64          `json:"version"`
	History []HistoryEntry `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the history slice.
// History is never nil in the copy, so it encodes as [].
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	out.History = append(make([]HistoryEntry, 0, len(b.History)), b.History...)
	return &out
}

// ReviewEligible gates completion acknowledgment and reviews on both axes.
// A booking may be completed while still unpaid.
func (b *Booking) ReviewEligible() bool {
	return b.Status == StatusCompleted && b.PaymentStatus == PaymentPaid
}

// CanView reports whether actor may read the booking or join its channel.
func (b *Booking) CanView(actor Actor) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleCustomer:
		return actor.ID == b.CustomerID
	case RoleProvider:
		return actor.ID == b.ProviderID
	}
	return false
}

// Event returns the broadcast payload for the booking's current state.
func (b *Booking) Event() StatusEvent {
	return StatusEvent{
		BookingID:     b.ID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Version:       b.Version,
	}
}

// StatusEvent is pushed to subscribers of a booking channel after every
// committed mutation.
type StatusEvent struct {
	BookingID     string          `json:"booking_id"`
	Status        LifecycleStatus `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Version       int64           `json:"version"`
}

// CheckoutSession is one external payment attempt for a booking.
type CheckoutSession struct {
	ID          string        `json:"id"`
	BookingID   string        `json:"booking_id"`
	CustomerID  string        `json:"customer_id"`
	Status      SessionStatus `json:"status"`
	URL         string        `json:"url"`
	AmountMinor int64         `json:"amount_minor"`
	Currency    string        `json:"currency"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	ClosedAt    time.Time     `json:"closed_at,omitzero"`
}

// ExpiredAt reports whether an open session is past its expiry at now.
func (s *CheckoutSession) ExpiredAt(now time.Time) bool {
	return s.Status == SessionOpen && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
