// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every span in the service.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	BookingIDKey      = "booking.id"
	BookingFromKey    = "booking.from"
	BookingToKey      = "booking.to"
	BookingVersionKey = "booking.version"

	ActorIDKey   = "actor.id"
	ActorRoleKey = "actor.role"

	PaymentSessionIDKey = "payment.session_id"
	PaymentStatusKey    = "payment.status"
	PaymentOutcomeKey   = "payment.outcome"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// TransitionAttributes describes a lifecycle transition request.
func TransitionAttributes(bookingID, from, to string, version int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(BookingIDKey, bookingID)}
	if from != "" {
		attrs = append(attrs, attribute.String(BookingFromKey, from))
	}
	if to != "" {
		attrs = append(attrs, attribute.String(BookingToKey, to))
	}
	if version > 0 {
		attrs = append(attrs, attribute.Int64(BookingVersionKey, version))
	}
	return attrs
}

// ActorAttributes identifies the caller.
func ActorAttributes(id, role string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ActorIDKey, id),
		attribute.String(ActorRoleKey, role),
	}
}

// PaymentAttributes describes a checkout session operation. Empty values are omitted.
func PaymentAttributes(sessionID, status, outcome string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(PaymentSessionIDKey, sessionID))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(PaymentStatusKey, status))
	}
	if outcome != "" {
		attrs = append(attrs, attribute.String(PaymentOutcomeKey, outcome))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
