// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/domain/booking/engine"
	"github.com/ManuGH/booksync/internal/domain/booking/lifecycle"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/payment"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/resilience"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantReason string
	}{
		{"forbidden role", &lifecycle.TransitionError{From: model.StatusPending, To: model.StatusAccepted, Role: model.RoleCustomer, Reason: lifecycle.ForbiddenRoleNotPermitted}, http.StatusForbidden, "forbidden", lifecycle.ForbiddenRoleNotPermitted},
		{"invalid transition", &lifecycle.TransitionError{From: model.StatusCompleted, To: model.StatusCancelled, Role: model.RoleCustomer, Reason: lifecycle.ForbiddenTerminalAbsorbing}, http.StatusConflict, "invalid_transition", lifecycle.ForbiddenTerminalAbsorbing},
		{"stale", store.ErrStaleVersion, http.StatusConflict, "stale_version", ""},
		{"invalid state", fmt.Errorf("%w: booking is paid", payment.ErrInvalidState), http.StatusConflict, "invalid_state", ""},
		{"session expired", payment.ErrSessionExpired, http.StatusGone, "session_expired", ""},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, "not_found", ""},
		{"invalid input", fmt.Errorf("%w: bad date", engine.ErrInvalidInput), http.StatusBadRequest, "invalid_input", ""},
		{"gateway", fmt.Errorf("%w: timeout", payment.ErrGateway), http.StatusBadGateway, "gateway_error", ""},
		{"breaker open", fmt.Errorf("%w: %w", payment.ErrGateway, resilience.ErrCircuitOpen), http.StatusServiceUnavailable, "gateway_unavailable", ""},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantReason, body.Reason)
			assert.NotContains(t, body.Detail, "disk on fire", "internal errors are not leaked")
		})
	}
}
