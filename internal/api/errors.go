// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/booksync/internal/domain/booking/engine"
	"github.com/ManuGH/booksync/internal/domain/booking/lifecycle"
	"github.com/ManuGH/booksync/internal/domain/booking/payment"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/resilience"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	// Reason is the lifecycle guard's rejection reason, when there is one.
	Reason string `json:"reason,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, detail string) {
	writeJSON(w, code, ErrorBody{Error: errCode, Detail: detail})
}

// writeDomainError classifies err into a status code and stable error code.
// Unknown errors are logged and answered with a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	body := ErrorBody{Detail: err.Error()}
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		body.Reason = te.Reason
	}

	var code int
	switch {
	case errors.Is(err, lifecycle.ErrForbidden):
		code, body.Error = http.StatusForbidden, "forbidden"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		code, body.Error = http.StatusConflict, "invalid_transition"
	case errors.Is(err, store.ErrStaleVersion):
		code, body.Error = http.StatusConflict, "stale_version"
		body.Detail = "booking changed since it was read; re-fetch and retry"
	case errors.Is(err, payment.ErrInvalidState):
		code, body.Error = http.StatusConflict, "invalid_state"
	case errors.Is(err, payment.ErrSessionExpired):
		code, body.Error = http.StatusGone, "session_expired"
	case errors.Is(err, store.ErrNotFound):
		code, body.Error = http.StatusNotFound, "not_found"
		body.Detail = "not found"
	case errors.Is(err, engine.ErrInvalidInput):
		code, body.Error = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, resilience.ErrCircuitOpen):
		code, body.Error = http.StatusServiceUnavailable, "gateway_unavailable"
		body.Detail = "payment provider temporarily unavailable; retry later"
	case errors.Is(err, payment.ErrGateway):
		code, body.Error = http.StatusBadGateway, "gateway_error"
		body.Detail = "payment provider unavailable"
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Warn().Err(err).Msg("gateway failure")
	default:
		code, body.Error = http.StatusInternalServerError, "internal"
		body.Detail = "An unexpected error occurred. Please try again later."
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Error().
			Err(err).
			Str(log.FieldMethod, r.Method).
			Str(log.FieldPath, r.URL.Path).
			Msg("unhandled error")
	}
	writeJSON(w, code, body)
}
