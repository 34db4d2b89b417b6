// Package server initializes and runs the fulfillment application server.
// It wires the database, runs migrations, builds the request authenticator
// and the fulfillment engine, and serves the HTTP endpoints with graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/logging"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/auth"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/config"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/fulfillment"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/httpapi"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/repositories/repomanager"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	server *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos, err := repomanager.NewPostgresRepositoryManager()
	if err != nil {
		return nil, fmt.Errorf("repository init error: %w", err)
	}

	keys := auth.NewKeySet(c.AuthJWKSURL)
	verifier := auth.NewVerifier(c.AuthIssuer, c.AuthClientID, keys, logger)
	engine := fulfillment.NewEngine(db, repos, []byte(c.WebhookSecret), logger)
	srv := httpapi.NewServer(c.EndpointAddrHTTP, logger, verifier, engine, db, repos)

	return &App{config: c, logger: logger, db: db, repos: repos, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	// NewApp opened the handle, so every way out of Run must release it,
	// the early migration-failure return included.
	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, "migrations failed", "error", err.Error())
		return
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
}
