// Package app wires the Chamados chat server runtime: config, logging, HTTP
// routes, and the websocket gateway.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chamados/cmd/internal/chat"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Chamados server runtime: it owns HTTP server wiring and the
// chat gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	gw *chat.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, msgStore, dir, devDir, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	auth := NewTrustedHeaderAuthenticator(cfg.DevQueryAuth, devDir)

	gw := chat.NewGateway(
		log,
		chat.NewSwitchboard(log),
		chat.NewPresenceRegistry(),
		chat.NewRoutingTable(),
		msgStore,
		dir,
		auth,
	)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		gw:        gw,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gw)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and in-memory dev
// stores. The in-memory directory is returned separately so the dev
// authenticator can register users into it as they connect.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, chat.MessageStore, chat.Directory, *chat.InMemoryDirectory, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		dir := chat.NewInMemoryDirectory()
		return nopStore{}, nil, false, chat.NewInMemoryStore(), dir, dir, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore.Close() is a no-op
	msgStore, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, nil, err
	}

	dir, err := chat.NewPostgresDirectory(pool, chat.WithDirectorySchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, nil, err
	}

	return dbStore{pool: pool, msgStore: msgStore}, pool, true, msgStore, dir, nil, nil
}

type dbStore struct {
	pool     *pgxpool.Pool
	msgStore chat.MessageStore
}

func (s dbStore) Close(_ context.Context) error {
	// Current PostgresStore.Close() is a no-op (pool is owned here).
	if s.msgStore != nil {
		_ = s.msgStore.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
