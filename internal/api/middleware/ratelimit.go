// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/booksync/internal/auth"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window
	RequestLimit int
	// WindowSize is the time window for rate limiting
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request.
	// If nil, defaults to IP-based rate limiting.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a sliding-window rate limiter using httprate.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}

// APIRateLimit returns the global per-client limiter for all endpoints.
func APIRateLimit(perMinute int, proxies TrustedProxies) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
		KeyFunc:      proxies.KeyFunc(),
	})
}

// KeyByActor keys on the authenticated actor, falling back to the client IP.
// It must run after the auth middleware.
func KeyByActor(proxies TrustedProxies) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			return "actor:" + p.ID, nil
		}
		return proxies.ClientIP(r), nil
	}
}

// CheckoutRateLimit guards checkout creation, which calls the payment gateway.
func CheckoutRateLimit(perMinute int, proxies TrustedProxies) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 10
	}
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
		KeyFunc:      KeyByActor(proxies),
	})
}
