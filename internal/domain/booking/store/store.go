// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists bookings and checkout sessions. Every backend
// serializes writers per booking with a compare-and-set on version.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleVersion means another writer advanced the booking first.
	ErrStaleVersion = errors.New("stale version")
	// ErrSessionConflict means the booking already has an open checkout session.
	ErrSessionConflict = errors.New("open checkout session already exists")
	// ErrInvariant is returned when a mutator breaks a storage invariant.
	ErrInvariant = errors.New("store invariant violated")
)

// BookingMutator derives the next snapshot from the current one. It must
// return a snapshot with Version == current.Version+1.
type BookingMutator func(cur *model.Booking) (*model.Booking, error)

// SessionMutator derives the next booking and session from the current pair.
// A nil return for either value leaves that record unchanged.
type SessionMutator func(b *model.Booking, s *model.CheckoutSession) (*model.Booking, *model.CheckoutSession, error)

// BookingFilter narrows ListBookings. Empty fields match everything.
type BookingFilter struct {
	CustomerID string
	ProviderID string
	Statuses   []model.LifecycleStatus
	Limit      int
}

// StateStore is the booking record store.
type StateStore interface {
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	// ListBookings returns snapshots newest first, without history.
	ListBookings(ctx context.Context, f BookingFilter) ([]*model.Booking, error)
	// UpdateBooking applies fn atomically. expectedVersion > 0 pins the version
	// the caller observed; 0 uses the version read inside the transaction.
	UpdateBooking(ctx context.Context, id string, expectedVersion int64, fn BookingMutator) (*model.Booking, error)

	GetSession(ctx context.Context, id string) (*model.CheckoutSession, error)
	// OpenSession returns the booking's open session or ErrNotFound.
	OpenSession(ctx context.Context, bookingID string) (*model.CheckoutSession, error)
	// ListOpenSessions returns open sessions whose expiry is at or before cutoff.
	ListOpenSessions(ctx context.Context, cutoff time.Time) ([]*model.CheckoutSession, error)
	// CreateSession inserts an open session and applies fn to its booking in
	// one transaction. ErrSessionConflict if an open session already exists.
	CreateSession(ctx context.Context, s *model.CheckoutSession, fn BookingMutator) (*model.Booking, error)
	// UpdateSession applies fn to the session and its booking atomically.
	UpdateSession(ctx context.Context, id string, fn SessionMutator) (*model.Booking, *model.CheckoutSession, error)

	Ping(ctx context.Context) error
	Close() error
}

// checkNext enforces the invariants every backend shares before writing.
func checkNext(cur, next *model.Booking) error {
	if next == nil {
		return fmt.Errorf("%w: mutator returned nil booking", ErrInvariant)
	}
	switch {
	case next.ID != cur.ID:
		return fmt.Errorf("%w: id changed", ErrInvariant)
	case next.Version != cur.Version+1:
		return fmt.Errorf("%w: version %d -> %d", ErrInvariant, cur.Version, next.Version)
	case next.AmountMinor != cur.AmountMinor || next.Currency != cur.Currency:
		return fmt.Errorf("%w: amount is immutable", ErrInvariant)
	case next.CustomerID != cur.CustomerID || next.ProviderID != cur.ProviderID || next.ServiceID != cur.ServiceID:
		return fmt.Errorf("%w: references are immutable", ErrInvariant)
	case next.Date != cur.Date || next.Time != cur.Time:
		return fmt.Errorf("%w: schedule is immutable", ErrInvariant)
	case len(next.History) < len(cur.History):
		return fmt.Errorf("%w: history is append-only", ErrInvariant)
	}
	for i := range cur.History {
		if !sameEntry(next.History[i], cur.History[i]) {
			return fmt.Errorf("%w: history entry %d rewritten", ErrInvariant, i)
		}
	}
	return nil
}

func sameEntry(a, b model.HistoryEntry) bool {
	return a.At.Equal(b.At) && a.ActorRole == b.ActorRole && a.ActorID == b.ActorID && a.From == b.From && a.To == b.To
}

func s2ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func ms2t(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
