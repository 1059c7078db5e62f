// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/booksync/internal/domain/booking/model"

const (
	ForbiddenTerminalAbsorbing = "terminal_absorbing"
	ForbiddenOutOfOrder        = "out_of_order"
	ForbiddenAlreadyInState    = "already_in_state"
	ForbiddenBackwards         = "backwards"
	ForbiddenUnknownState      = "unknown_state"

	// Actor-level reasons; these map to ErrForbidden rather than ErrInvalidTransition.
	ForbiddenRoleNotPermitted = "role_not_permitted"
	ForbiddenNotOwner         = "not_owner"
)

// Decision records whether a transition is allowed and why it is forbidden.
type Decision struct {
	Allowed bool
	Reason  string
}

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

func absorbing() map[model.LifecycleStatus]Decision {
	return map[model.LifecycleStatus]Decision{
		model.StatusPending:   forbid(ForbiddenTerminalAbsorbing),
		model.StatusAccepted:  forbid(ForbiddenTerminalAbsorbing),
		model.StatusEnRoute:   forbid(ForbiddenTerminalAbsorbing),
		model.StatusStarted:   forbid(ForbiddenTerminalAbsorbing),
		model.StatusCompleted: forbid(ForbiddenTerminalAbsorbing),
		model.StatusRejected:  forbid(ForbiddenTerminalAbsorbing),
		model.StatusCancelled: forbid(ForbiddenTerminalAbsorbing),
	}
}

// decisionTable defines an explicit graph decision for every From x To pair.
var decisionTable = map[model.LifecycleStatus]map[model.LifecycleStatus]Decision{
	model.StatusPending: {
		model.StatusPending:   forbid(ForbiddenAlreadyInState),
		model.StatusAccepted:  allowed(),
		model.StatusEnRoute:   forbid(ForbiddenOutOfOrder),
		model.StatusStarted:   forbid(ForbiddenOutOfOrder),
		model.StatusCompleted: forbid(ForbiddenOutOfOrder),
		model.StatusRejected:  allowed(),
		model.StatusCancelled: allowed(),
	},
	model.StatusAccepted: {
		model.StatusPending:   forbid(ForbiddenBackwards),
		model.StatusAccepted:  forbid(ForbiddenAlreadyInState),
		model.StatusEnRoute:   allowed(),
		model.StatusStarted:   forbid(ForbiddenOutOfOrder),
		model.StatusCompleted: forbid(ForbiddenOutOfOrder),
		model.StatusRejected:  forbid(ForbiddenOutOfOrder),
		model.StatusCancelled: allowed(),
	},
	model.StatusEnRoute: {
		model.StatusPending:   forbid(ForbiddenBackwards),
		model.StatusAccepted:  forbid(ForbiddenBackwards),
		model.StatusEnRoute:   forbid(ForbiddenAlreadyInState),
		model.StatusStarted:   allowed(),
		model.StatusCompleted: forbid(ForbiddenOutOfOrder),
		model.StatusRejected:  forbid(ForbiddenOutOfOrder),
		model.StatusCancelled: forbid(ForbiddenOutOfOrder),
	},
	model.StatusStarted: {
		model.StatusPending:   forbid(ForbiddenBackwards),
		model.StatusAccepted:  forbid(ForbiddenBackwards),
		model.StatusEnRoute:   forbid(ForbiddenBackwards),
		model.StatusStarted:   forbid(ForbiddenAlreadyInState),
		model.StatusCompleted: allowed(),
		model.StatusRejected:  forbid(ForbiddenOutOfOrder),
		model.StatusCancelled: forbid(ForbiddenOutOfOrder),
	},
	model.StatusCompleted: absorbing(),
	model.StatusRejected:  absorbing(),
	model.StatusCancelled: absorbing(),
}

// DecisionFor returns the graph decision for from -> to, ignoring the actor.
func DecisionFor(from, to model.LifecycleStatus) (Decision, bool) {
	row, ok := decisionTable[from]
	if !ok {
		return Decision{}, false
	}
	d, ok := row[to]
	return d, ok
}

// Decide evaluates the graph and the role table. Ownership is checked by
// Check, which needs the booking itself.
func Decide(from, to model.LifecycleStatus, role model.Role) Decision {
	d, ok := DecisionFor(from, to)
	if !ok {
		return forbid(ForbiddenUnknownState)
	}
	if !d.Allowed {
		return d
	}
	tr, ok := TransitionFor(from, to)
	if !ok {
		// Table drift between decisionTable and transitionsTable.
		return forbid(ForbiddenOutOfOrder)
	}
	if !tr.Permits(role) {
		return forbid(ForbiddenRoleNotPermitted)
	}
	return d
}
