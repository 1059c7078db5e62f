// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"time"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

// Check validates a transition request against the booking snapshot.
// Ownership is checked first so non-owners learn nothing about the state.
func Check(b *model.Booking, actor model.Actor, to model.LifecycleStatus) error {
	if err := CheckOwner(b, actor, to); err != nil {
		return err
	}
	if d := Decide(b.Status, to, actor.Role); !d.Allowed {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: to, Role: actor.Role, Reason: d.Reason}
	}
	return nil
}

// CheckOwner rejects actors that are not a party to the booking.
func CheckOwner(b *model.Booking, actor model.Actor, to model.LifecycleStatus) error {
	if !owns(b, actor) {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: to, Role: actor.Role, Reason: ForbiddenNotOwner}
	}
	return nil
}

func owns(b *model.Booking, actor model.Actor) bool {
	switch actor.Role {
	case model.RoleProvider:
		return actor.ID != "" && actor.ID == b.ProviderID
	case model.RoleCustomer:
		return actor.ID != "" && actor.ID == b.CustomerID
	default:
		return false
	}
}

// Apply returns a new snapshot with the transition applied: status set,
// exactly one history entry appended and version incremented. The input is
// never mutated, so a rejected attempt writes nothing.
func Apply(b *model.Booking, actor model.Actor, to model.LifecycleStatus, now time.Time) (*model.Booking, error) {
	if err := Check(b, actor, to); err != nil {
		return nil, err
	}
	next := b.Clone()
	next.History = append(next.History, model.HistoryEntry{
		At:        now.UTC(),
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		From:      b.Status,
		To:        to,
	})
	next.Status = to
	next.Version = b.Version + 1
	next.UpdatedAt = now.UTC()
	return next, nil
}
