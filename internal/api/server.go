// SPDX-License-Identifier: MIT

// Package api is the HTTP boundary: it authenticates callers, decodes
// requests and maps domain errors to status codes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/booksync/internal/api/middleware"
	"github.com/ManuGH/booksync/internal/domain/booking/engine"
	"github.com/ManuGH/booksync/internal/domain/booking/payment"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
)

const (
	maxBodyBytes    = 64 << 10
	maxWebhookBytes = 256 << 10
)

// Checker reports whether a dependency is ready to serve traffic.
type Checker func(ctx context.Context) error

// Config holds the HTTP surface settings.
type Config struct {
	AllowedOrigins []string

	// RateLimitPerMinute caps requests per client IP; 0 disables.
	RateLimitPerMinute int
	// TrustedProxies may set X-Forwarded-For for the client IP.
	TrustedProxies []string
	// CheckoutPerMinute caps checkout creation per actor.
	CheckoutPerMinute int

	EnableMetrics  bool
	TracingService string
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Engine   *engine.Engine
	Payments *payment.Worker
	Verifier middleware.TokenVerifier
	Webhooks ports.WebhookVerifier
	// Realtime serves GET /ws. It is mounted behind the auth middleware
	// with query tokens allowed.
	Realtime http.Handler
	// Ready lists extra readiness checks beyond the booking store.
	Ready map[string]Checker
}

type Server struct {
	cfg     Config
	deps    Deps
	proxies middleware.TrustedProxies
	handler http.Handler
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil || deps.Payments == nil || deps.Verifier == nil {
		return nil, errors.New("api: engine, payments and verifier are required")
	}
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	s := &Server{cfg: cfg, deps: deps, proxies: proxies}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the routed handler; the daemon owns the http.Server.
func (s *Server) Handler() http.Handler { return s.handler }

// operation binds one OpenAPI operation to its handler. ID is the
// operationId in UpperCamelCase.
type operation struct {
	Method  string
	Path    string
	ID      string
	Public  bool
	Handler http.Handler
}

// operations lists every documented operation the server mounts.
func (s *Server) operations() []operation {
	ops := []operation{
		{http.MethodGet, "/healthz", "GetHealthz", true, http.HandlerFunc(s.handleHealth)},
		{http.MethodGet, "/readyz", "GetReadyz", true, http.HandlerFunc(s.handleReady)},
		{http.MethodPost, "/bookings", "CreateBooking", false, http.HandlerFunc(s.handleCreateBooking)},
		{http.MethodGet, "/bookings", "ListBookings", false, http.HandlerFunc(s.handleListBookings)},
		{http.MethodGet, "/bookings/{id}", "GetBooking", false, http.HandlerFunc(s.handleGetBooking)},
		{http.MethodPut, "/bookings/{id}/status", "UpdateBookingStatus", false, http.HandlerFunc(s.handleUpdateStatus)},
		{http.MethodPost, "/payments/create-checkout", "CreateCheckout", false,
			middleware.CheckoutRateLimit(s.cfg.CheckoutPerMinute, s.proxies)(http.HandlerFunc(s.handleCreateCheckout))},
		{http.MethodGet, "/payments/checkout-status/{session_id}", "GetCheckoutStatus", false, http.HandlerFunc(s.handleCheckoutStatus)},
	}
	// Gateway callbacks authenticate by signature, not bearer token.
	if s.deps.Webhooks != nil {
		ops = append(ops, operation{http.MethodPost, "/payments/webhook", "ReceivePaymentWebhook", true, http.HandlerFunc(s.handleWebhook)})
	}
	return ops
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            len(s.cfg.AllowedOrigins) > 0,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         s.cfg.EnableMetrics,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		RateLimitPerMinute:    s.cfg.RateLimitPerMinute,
		TrustedProxies:        s.proxies,
	})

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(OpenAPISpec)
	})
	if s.cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	authed := r.With(middleware.Authenticate(s.deps.Verifier, false))
	for _, op := range s.operations() {
		if op.Public {
			r.Method(op.Method, op.Path, op.Handler)
			continue
		}
		authed.Method(op.Method, op.Path, op.Handler)
	}

	if s.deps.Realtime != nil {
		r.With(middleware.Authenticate(s.deps.Verifier, true)).Get("/ws", s.deps.Realtime.ServeHTTP)
	}
	return r
}
