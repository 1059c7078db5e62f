// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/auth"
	"github.com/ManuGH/booksync/internal/catalog"
	"github.com/ManuGH/booksync/internal/domain/booking/engine"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/payment"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/payment/mockgw"
	"github.com/ManuGH/booksync/internal/platform/keymutex"
)

const webhookSecret = "whsec_test"

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(OpenAPISpec)
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

// validateOpenAPIResponse checks rr against the documented response for req.
func validateOpenAPIResponse(t *testing.T, req *http.Request, rr *httptest.ResponseRecorder) {
	t.Helper()
	doc := loadOpenAPIDoc(t)
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err, "openapi router init")

	route, pathParams, err := router.FindRoute(req)
	require.NoError(t, err, "openapi route lookup")

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: rr.Code,
		Header: rr.Header(),
	}
	input.SetBodyBytes(rr.Body.Bytes())
	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), input), "openapi response validation")
}

type testEnv struct {
	t        *testing.T
	server   *Server
	handler  http.Handler
	verifier *auth.Verifier
	store    *store.MemoryStore
	gateway  *mockgw.Gateway
	engine   *engine.Engine
	worker   *payment.Worker
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()
	cat, err := catalog.NewStatic([]catalog.Entry{
		{ID: "svc-clean", Name: "Deep clean", ProviderID: "prov-1", Price: "49.90", Currency: "EUR"},
	}, "EUR")
	require.NoError(t, err)

	st := store.NewMemoryStore()
	locks := keymutex.New()
	gw := mockgw.New(30*time.Minute, webhookSecret)
	eng := engine.New(st, nil, cat, locks)
	worker := payment.NewWorker(st, gw, nil, locks)

	v, err := auth.NewVerifier(auth.VerifierConfig{Secret: "test-secret"})
	require.NoError(t, err)

	cfg := Config{EnableMetrics: true, CheckoutPerMinute: 100}
	for _, o := range opts {
		o(&cfg)
	}
	srv, err := New(cfg, Deps{
		Engine:   eng,
		Payments: worker,
		Verifier: v,
		Webhooks: gw,
	})
	require.NoError(t, err)

	return &testEnv{
		t:        t,
		server:   srv,
		handler:  srv.Handler(),
		verifier: v,
		store:    st,
		gateway:  gw,
		engine:   eng,
		worker:   worker,
	}
}

func (e *testEnv) token(id string, role model.Role) string {
	e.t.Helper()
	tok, err := e.verifier.Issue(id, role, time.Hour)
	require.NoError(e.t, err)
	return tok
}

// do sends a request as actor ("" for anonymous) and validates the response
// against the contract.
func (e *testEnv) do(method, target string, actor *model.Actor, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(e.t, err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(actor.ID, actor.Role))
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	// The handler consumed the body; give the validator a fresh copy.
	req.Body = io.NopCloser(bytes.NewReader(raw))
	validateOpenAPIResponse(e.t, req, rr)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

var (
	customer  = &model.Actor{ID: "cust-1", Role: model.RoleCustomer}
	stranger  = &model.Actor{ID: "cust-2", Role: model.RoleCustomer}
	provider  = &model.Actor{ID: "prov-1", Role: model.RoleProvider}
	provider2 = &model.Actor{ID: "prov-2", Role: model.RoleProvider}
	admin     = &model.Actor{ID: "ops", Role: model.RoleAdmin}
)

type bookingJSON struct {
	ID             string                `json:"id"`
	Status         model.LifecycleStatus `json:"status"`
	PaymentStatus  model.PaymentStatus   `json:"payment_status"`
	Version        int64                 `json:"version"`
	AmountMinor    int64                 `json:"amount_minor"`
	Currency       string                `json:"currency"`
	History        []model.HistoryEntry  `json:"history"`
	ReviewEligible bool                  `json:"review_eligible"`
}

func (e *testEnv) createBooking() bookingJSON {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/bookings", customer, map[string]string{
		"service_id": "svc-clean", "date": "2025-06-01", "time": "14:30",
	})
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodeJSON[struct {
		ID      string      `json:"id"`
		Booking bookingJSON `json:"booking"`
	}](e.t, rr)
	return resp.Booking
}

func (e *testEnv) transition(id string, actor *model.Actor, status model.LifecycleStatus) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPut, "/bookings/"+id+"/status", actor, map[string]any{"status": status})
}
