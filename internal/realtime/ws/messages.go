// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ws

import (
	"encoding/json"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

// Message types on the wire.
const (
	TypeJoinBooking  = "join_booking"
	TypeLeaveBooking = "leave_booking"

	TypeStatusUpdate = "booking_status_update"
	TypeSnapshot     = "booking_snapshot"
	TypeError        = "error"
)

// Error codes sent in error frames.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeRateLimited = "rate_limited"
	CodeEvicted     = "evicted"
	CodeInternal    = "internal"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BookingRef is the payload of join_booking and leave_booking.
type BookingRef struct {
	BookingID string `json:"booking_id"`
}

// Snapshot is sent once per successful join.
type Snapshot struct {
	Booking *model.Booking `json:"booking"`
}

// ErrorFrame reports a rejected client message. The connection stays open
// unless Code is CodeEvicted.
type ErrorFrame struct {
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
}

func frame(typ string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Data: data}, nil
}
