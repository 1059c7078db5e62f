// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldBookingID = "booking_id"
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldActorID   = "actor_id"
	FieldActorRole = "actor_role"
	FieldServiceID = "service_id"
	FieldConnID    = "conn_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState      = "old_state"
	FieldNewState      = "new_state"
	FieldPaymentStatus = "payment_status"
	FieldVersion       = "version"
	FieldReason        = "reason"

	// HTTP fields
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldRoute      = "route"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
)
