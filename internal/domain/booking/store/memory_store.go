// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

// MemoryStore is an in-process StateStore for tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	sessions map[string]*model.CheckoutSession
	open     map[string]string // booking id -> open session id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*model.Booking),
		sessions: make(map[string]*model.CheckoutSession),
		open:     make(map[string]string),
	}
}

func (m *MemoryStore) CreateBooking(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	m.bookings[b.ID] = b.Clone()
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (m *MemoryStore) ListBookings(ctx context.Context, f BookingFilter) ([]*model.Booking, error) {
	m.mu.RLock()
	out := make([]*model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.ProviderID != "" && b.ProviderID != f.ProviderID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			continue
		}
		c := b.Clone()
		c.History = nil
		out = append(out, c)
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *model.Booking) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (m *MemoryStore) UpdateBooking(_ context.Context, id string, expectedVersion int64, fn BookingMutator) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return nil, ErrStaleVersion
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if err := checkNext(cur, next); err != nil {
		return nil, err
	}
	m.bookings[id] = next.Clone()
	return next, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.CheckoutSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) OpenSession(_ context.Context, bookingID string) (*model.CheckoutSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.sessions[id]
	return &cp, nil
}

func (m *MemoryStore) ListOpenSessions(_ context.Context, cutoff time.Time) ([]*model.CheckoutSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CheckoutSession
	for _, id := range m.open {
		s := m.sessions[id]
		if !s.ExpiresAt.After(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.CheckoutSession) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *model.CheckoutSession, fn BookingMutator) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[s.BookingID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, exists := m.open[s.BookingID]; exists {
		return nil, ErrSessionConflict
	}
	if _, exists := m.sessions[s.ID]; exists {
		return nil, fmt.Errorf("session %s already exists", s.ID)
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if err := checkNext(cur, next); err != nil {
		return nil, err
	}
	cp := *s
	m.sessions[s.ID] = &cp
	if s.Status == model.SessionOpen {
		m.open[s.BookingID] = s.ID
	}
	m.bookings[cur.ID] = next.Clone()
	return next, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id string, fn SessionMutator) (*model.Booking, *model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	cur, ok := m.bookings[s.BookingID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	scopy := *s
	nextB, nextS, err := fn(cur.Clone(), &scopy)
	if err != nil {
		return nil, nil, err
	}
	if nextB != nil {
		if err := checkNext(cur, nextB); err != nil {
			return nil, nil, err
		}
	}
	if nextS != nil {
		if nextS.ID != s.ID || nextS.BookingID != s.BookingID {
			return nil, nil, fmt.Errorf("%w: session identity changed", ErrInvariant)
		}
		cp := *nextS
		m.sessions[id] = &cp
		if cp.Status == model.SessionOpen {
			m.open[cp.BookingID] = cp.ID
		} else if m.open[cp.BookingID] == cp.ID {
			delete(m.open, cp.BookingID)
		}
	}
	if nextB != nil {
		m.bookings[cur.ID] = nextB.Clone()
	}

	outB := cur.Clone()
	if nextB != nil {
		outB = nextB
	}
	outS := *m.sessions[id]
	return outB, &outS, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

var _ StateStore = (*MemoryStore)(nil)
