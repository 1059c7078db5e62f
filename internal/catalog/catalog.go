// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package catalog is the static service catalog loaded from configuration.
package catalog

import (
	"context"
	"fmt"

	"github.com/ManuGH/booksync/internal/domain/booking/ports"
)

// Entry is one configured service.
type Entry struct {
	ID         string
	Name       string
	ProviderID string
	Price      string
	Currency   string
}

// Static resolves services from a fixed table.
type Static struct {
	services map[string]ports.Service
}

// NewStatic validates entries and converts prices to minor units.
func NewStatic(entries []Entry, defaultCurrency string) (*Static, error) {
	s := &Static{services: make(map[string]ports.Service, len(entries))}
	for _, e := range entries {
		if e.ID == "" || e.ProviderID == "" {
			return nil, fmt.Errorf("catalog entry %q: id and provider_id are required", e.ID)
		}
		if _, dup := s.services[e.ID]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate id", e.ID)
		}
		code := e.Currency
		if code == "" {
			code = defaultCurrency
		}
		minor, cur, err := ToMinor(e.Price, code)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.ID, err)
		}
		name := e.Name
		if name == "" {
			name = e.ID
		}
		s.services[e.ID] = ports.Service{
			ID:          e.ID,
			Name:        name,
			ProviderID:  e.ProviderID,
			AmountMinor: minor,
			Currency:    cur,
		}
	}
	return s, nil
}

func (s *Static) Lookup(_ context.Context, serviceID string) (ports.Service, error) {
	svc, ok := s.services[serviceID]
	if !ok {
		return ports.Service{}, fmt.Errorf("%w: %s", ports.ErrUnknownService, serviceID)
	}
	return svc, nil
}

func (s *Static) Len() int { return len(s.services) }

var _ ports.Catalog = (*Static)(nil)
