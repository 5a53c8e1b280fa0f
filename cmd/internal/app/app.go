// Package app wires the authd runtime: config, logging, storage, audit sinks, metrics and HTTP routes.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"authd/cmd/internal/auth/api"
	"authd/cmd/internal/auth/audit"
	"authd/cmd/internal/auth/session"
	"authd/cmd/security/password"
)

// App is the authd runtime: it owns the HTTP server wiring and every closable dependency.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	store     session.Store

	metrics  *Metrics
	sessions *session.Service
	auth     *api.Handler

	closers []io.Closer
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	refreshHasher, err := RefreshHasher(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	sink, err := a.auditSink()
	if err != nil {
		a.closeAll()
		return nil, err
	}

	tokens, err := session.NewAccessTokenManager(sessCfg)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	a.sessions, err = session.NewService(sessCfg, a.store, tokens, hasher,
		session.WithLogger(log),
		session.WithAudit(sink),
		session.WithRefreshHasher(refreshHasher),
		session.WithObserver(a.metrics.Observer()),
	)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	a.auth, err = api.NewHandler(log, a.sessions, api.LoadConfigFromEnv())
	if err != nil {
		a.closeAll()
		return nil, err
	}

	log.Info("app.ready",
		"db_enabled", a.dbEnabled,
		"token_format", string(sessCfg.TokenFormat),
		"refresh_hmac", refreshHasher.HMAC(),
	)
	return a, nil
}

// openStore selects Postgres when a database URL is configured and the in-memory store otherwise.
func (a *App) openStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn("db.disabled.inmemory_store", "hint", "set AUTH_DATABASE_URL; accounts and sessions are lost on restart")
		a.store = session.NewMemoryStore()
		return nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return err
	}
	st, err := session.NewPostgresStore(pool, session.WithSchema(a.cfg.DBSchema))
	if err != nil {
		pool.Close()
		return err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	a.dbPool = pool
	a.dbEnabled = true
	a.store = st
	return nil
}

func (a *App) auditSink() (audit.Sink, error) {
	var sinks audit.Multi

	if a.cfg.AuditDB && a.dbPool != nil {
		sinks = append(sinks, audit.NewPostgresSink(a.dbPool, a.cfg.DBSchema, a.log))
	}
	if a.cfg.AMQPURL != "" {
		pub, err := audit.NewAMQPPublisher(a.cfg.AMQPURL, a.cfg.AMQPQueue, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub)
		sinks = append(sinks, pub)
	}

	switch len(sinks) {
	case 0:
		return audit.Nop{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	var ready readinessProbe
	if a.dbEnabled {
		ready = a.store.Ping
	}
	registerHTTP(mux, a.log, a.cfg, a.dbEnabled, ready, a.metrics, a.auth)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log, a.metrics)
	h = WithRequestID(h)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
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
		a.closeAll()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeAll()
		return err
	}

	a.closeAll()
	a.log.Info("server.stopped")
	return nil
}

// closeAll releases audit publishers and the pool, in that order.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Error("app.close.fail", "err", err)
		}
	}
	a.closers = nil
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
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
