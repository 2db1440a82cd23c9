// Package app wires the Parley server runtime: config, logging, metrics,
// stores, and HTTP routes.
//
// It is intentionally small and deterministic to keep CI gates strict and
// behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/api"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/chat/api"
	"parley/cmd/security/password"
	"parley/cmd/security/token"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Parley server runtime: it owns HTTP server wiring and the
// store and handler dependencies behind it.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *prometheus.Registry

	auth *authapi.Handler
	chat *chatapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	secret := cfg.TokenSecret
	if secret == "" {
		s, err := devTokenSecret()
		if err != nil {
			return nil, err
		}
		secret = s
		log.Warn("token.secret.ephemeral",
			"hint", "set PARLEY_TOKEN_SECRET to keep tokens valid across restarts")
	}

	tokens, err := token.NewManager(token.Config{Secret: secret, TTL: cfg.TokenTTL})
	if err != nil {
		return nil, err
	}

	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, users, rooms, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, hasher, tokens)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	chatHandler, err := chatapi.NewHandler(log, chatapi.LoadConfigFromEnv(), rooms, tokens)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		metrics:   NewMetricsRegistry(),
		auth:      authHandler,
		chat:      chatHandler,
	}, nil
}

// Handler builds the full HTTP handler chain: routes wrapped in security
// headers, CORS, and request logging (outermost, so denied requests are
// logged too).
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.chat, a.metrics)

	var h http.Handler = WithSecurityHeaders(mux)
	h = WithCORS(h, a.cfg, a.log)
	h = WithRequestLogging(h, a.log)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
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

// newStores decides between Postgres-backed persistence and the in-memory
// dev stores. In memory mode the chat store resolves sender usernames
// through the identity store.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, identity.Store, chat.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		users := identity.NewMemoryStore()
		rooms := chat.NewMemoryStore(chat.WithUsernameResolver(func(userID int64) string {
			u, err := users.GetUserByID(context.Background(), userID)
			if err != nil {
				return ""
			}
			return u.Username
		}))
		return nopStore{}, nil, false, users, rooms, nil
	}

	if cfg.DBMigrate {
		if err := MigrateDB(ctx, cfg); err != nil {
			return nil, nil, false, nil, nil, err
		}
		log.Info("db.migrated")
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model: app owns the pool lifecycle; the stores borrow it.
	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}
	rooms, err := chat.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	return dbStore{pool: pool}, pool, true, users, rooms, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
