// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// LifecycleStatus is the booking's progress stage.
type LifecycleStatus string

const (
	StatusPending   LifecycleStatus = "pending"
	StatusAccepted  LifecycleStatus = "accepted"
	StatusEnRoute   LifecycleStatus = "en-route"
	StatusStarted   LifecycleStatus = "started"
	StatusCompleted LifecycleStatus = "completed"
	StatusRejected  LifecycleStatus = "rejected"
	StatusCancelled LifecycleStatus = "cancelled"
)

// AllStatuses lists every lifecycle state in graph order.
var AllStatuses = []LifecycleStatus{
	StatusPending,
	StatusAccepted,
	StatusEnRoute,
	StatusStarted,
	StatusCompleted,
	StatusRejected,
	StatusCancelled,
}

// IsTerminal returns true if no transition may leave the state.
func (s LifecycleStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s LifecycleStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment axis of a booking. It is independent of the
// lifecycle axis and only moves through payment reconciliation.
type PaymentStatus string

const (
	PaymentUnpaid         PaymentStatus = "unpaid"
	PaymentSessionCreated PaymentStatus = "session_created"
	PaymentPaid           PaymentStatus = "paid"
	PaymentExpired        PaymentStatus = "expired"
	PaymentFailed         PaymentStatus = "failed"
)

// Valid reports whether p is a known payment state.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentSessionCreated, PaymentPaid, PaymentExpired, PaymentFailed:
		return true
	}
	return false
}

// SessionStatus is the state of one checkout attempt.
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionPaid    SessionStatus = "paid"
	SessionExpired SessionStatus = "expired"
)

// ExternalStatus is what the payment gateway reports for a session.
type ExternalStatus string

const (
	ExternalOpen    ExternalStatus = "open"
	ExternalPaid    ExternalStatus = "paid"
	ExternalExpired ExternalStatus = "expired"
	ExternalFailed  ExternalStatus = "failed"
	// ExternalProcessing is a completed checkout whose payment has not
	// settled yet (delayed methods such as bank debits). It must not be
	// expired locally; a paid or failed result follows.
	ExternalProcessing ExternalStatus = "processing"
)

// Role is the acting role of an authenticated caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}
