// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewarePropagatesStatusAndLogger(t *testing.T) {
	var sawLogger bool
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := FromContext(r.Context())
		sawLogger = l != nil
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/bookings", nil))

	assert.True(t, sawLogger)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestStatusWriterHijackWithoutSupport(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := sw.Hijack()
	assert.Error(t, err)
}
