// SPDX-License-Identifier: MIT

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestHTTPAttributes(t *testing.T) {
	m := attrMap(HTTPAttributes("PUT", "/bookings/{id}/status", "/bookings/b1/status", 409))
	assert.Equal(t, "PUT", m[HTTPMethodKey].AsString())
	assert.Equal(t, "/bookings/{id}/status", m[HTTPRouteKey].AsString())
	assert.Equal(t, int64(409), m[HTTPStatusCodeKey].AsInt64())
}

func TestTransitionAttributes(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		version int64
		want    int
	}{
		{"full", "pending", "accepted", 3, 4},
		{"no source", "", "accepted", 0, 2},
		{"id only", "", "", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := TransitionAttributes("b1", tt.from, tt.to, tt.version)
			assert.Len(t, attrs, tt.want)
			assert.Equal(t, "b1", attrMap(attrs)[BookingIDKey].AsString())
		})
	}
}

func TestPaymentAttributesOmitsEmpty(t *testing.T) {
	m := attrMap(PaymentAttributes("cs_1", "", "paid"))
	assert.Len(t, m, 2)
	assert.Equal(t, "cs_1", m[PaymentSessionIDKey].AsString())
	assert.Equal(t, "paid", m[PaymentOutcomeKey].AsString())
}

func TestErrorAttributes(t *testing.T) {
	m := attrMap(ErrorAttributes(errors.New("x"), "stale_version"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "stale_version", m[ErrorTypeKey].AsString())
}
