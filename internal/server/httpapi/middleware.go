package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/auth"
)

type ctxKey string

const authContextKey ctxKey = "authContext"

// AuthContextFrom returns the verified identity attached by the
// authentication middleware.
func AuthContextFrom(ctx context.Context) (*auth.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*auth.AuthContext)
	return ac, ok
}

// authenticate gates the wrapped handlers on a verified bearer token
// carrying every required scope. Authentication failures answer 401 with a
// uniform message; a valid token missing a scope answers 403.
func (s *Server) authenticate(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ac, err := s.verifier.Verify(r.Context(), token, requiredScopes...)
			if errors.Is(err, common.ErrInsufficientScope) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authContextKey, ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>"
// header. Returns "" for a missing or malformed header.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
