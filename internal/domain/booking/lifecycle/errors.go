// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

var (
	// ErrInvalidTransition means the target is not reachable from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForbidden means the actor's role or identity may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// TransitionError carries the rejected request for logging and API details.
type TransitionError struct {
	BookingID string
	From      model.LifecycleStatus
	To        model.LifecycleStatus
	Role      model.Role
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %s: %s -> %s by %s: %s", e.BookingID, e.From, e.To, e.Role, e.Reason)
}

// Unwrap classifies the rejection as forbidden or invalid.
func (e *TransitionError) Unwrap() error {
	switch e.Reason {
	case ForbiddenRoleNotPermitted, ForbiddenNotOwner:
		return ErrForbidden
	default:
		return ErrInvalidTransition
	}
}
