// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/booksync/internal/domain/booking/model"

// Transition is a single allowed edge in the booking state machine together
// with the roles permitted to request it.
type Transition struct {
	From  model.LifecycleStatus
	To    model.LifecycleStatus
	Roles []model.Role
}

// Permits reports whether role may request this edge.
func (t Transition) Permits(role model.Role) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var (
	providerOnly       = []model.Role{model.RoleProvider}
	customerOrProvider = []model.Role{model.RoleCustomer, model.RoleProvider}
)

var transitionsTable = []Transition{
	// Happy path
	{From: model.StatusPending, To: model.StatusAccepted, Roles: providerOnly},
	{From: model.StatusAccepted, To: model.StatusEnRoute, Roles: providerOnly},
	{From: model.StatusEnRoute, To: model.StatusStarted, Roles: providerOnly},
	{From: model.StatusStarted, To: model.StatusCompleted, Roles: providerOnly},

	// Early exits
	{From: model.StatusPending, To: model.StatusRejected, Roles: providerOnly},
	{From: model.StatusPending, To: model.StatusCancelled, Roles: customerOrProvider},
	{From: model.StatusAccepted, To: model.StatusCancelled, Roles: customerOrProvider},
}

// TransitionFor returns the edge from -> to if it exists.
func TransitionFor(from, to model.LifecycleStatus) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the full edge table.
func Transitions() []Transition {
	out := make([]Transition, 0, len(transitionsTable))
	for _, tr := range transitionsTable {
		tr.Roles = append([]model.Role(nil), tr.Roles...)
		out = append(out, tr)
	}
	return out
}

// AllowedTargets lists the states role may move a booking to from "from".
// Clients use it to decide which actions to offer.
func AllowedTargets(from model.LifecycleStatus, role model.Role) []model.LifecycleStatus {
	var out []model.LifecycleStatus
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Permits(role) {
			out = append(out, tr.To)
		}
	}
	return out
}
