// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"context"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

// Principal represents the authenticated identity of a caller.
type Principal struct {
	// ID is the stable subject claim.
	ID   string
	Role model.Role
}

// Actor converts the principal into the identity passed to the core.
func (p *Principal) Actor() model.Actor {
	if p == nil {
		return model.Actor{}
	}
	return model.Actor{ID: p.ID, Role: p.Role}
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
