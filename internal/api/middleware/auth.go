// SPDX-License-Identifier: MIT

package middleware

import (
	"errors"
	"net/http"

	"github.com/ManuGH/booksync/internal/auth"
	"github.com/ManuGH/booksync/internal/log"
)

// TokenVerifier turns a raw bearer token into a principal.
type TokenVerifier interface {
	Verify(raw string) (*auth.Principal, error)
}

// Authenticate rejects requests without a valid bearer token and stores
// the principal in the request context. allowQuery permits ?token= for
// websocket upgrades.
func Authenticate(v TokenVerifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Verify(auth.ExtractToken(r, allowQuery))
			if err != nil {
				code := "unauthenticated"
				if errors.Is(err, auth.ErrInvalidToken) {
					code = "invalid_token"
				}
				l := log.WithComponentFromContext(r.Context(), "auth")
				l.Debug().Err(err).Msg("request rejected")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="booksync"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"` + code + `","detail":"a valid bearer token is required"}`))
				return
			}
			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = log.ContextWithActorID(ctx, p.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
