// Package httpapi exposes the fulfillment subsystem over HTTP: the signed
// payment webhook endpoint and the bearer-authenticated library route.
// Everything else the storefront serves lives outside this process.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/logging"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/auth"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/fulfillment"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/repositories/repomanager"
)

// SignatureHeader carries the payment processor's hex HMAC digest of the
// raw request body.
const SignatureHeader = "X-Payment-Signature"

// ScopeLibraryRead is required to list a user's granted entitlements.
const ScopeLibraryRead = "library:read"

// TokenVerifier validates a raw bearer token and returns the caller's
// AuthContext. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, requiredScopes ...string) (*auth.AuthContext, error)
}

// Server routes the two inbound channels: webhook deliveries authenticated
// by message signature, and user requests authenticated by bearer token.
type Server struct {
	addr     string
	logger   logging.Logger
	verifier TokenVerifier
	engine   *fulfillment.Engine
	db       *sql.DB
	repos    repomanager.RepositoryManager
}

// NewServer wires the HTTP surface.
func NewServer(addr string, logger logging.Logger, verifier TokenVerifier, engine *fulfillment.Engine, db *sql.DB, repos repomanager.RepositoryManager) *Server {
	return &Server{addr: addr, logger: logger, verifier: verifier, engine: engine, db: db, repos: repos}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/webhooks/payment", s.handlePaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate(ScopeLibraryRead))
		r.Get("/api/library", s.handleListLibrary)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info(ctx, "http server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
