package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/99minutos/storefront/internal/api"
	"github.com/99minutos/storefront/internal/api/handler"
	"github.com/99minutos/storefront/internal/api/middleware"
	"github.com/99minutos/storefront/internal/api/session"
	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
	"github.com/99minutos/storefront/internal/core/service"
	"github.com/99minutos/storefront/internal/infrastructure/config"
	mongodb "github.com/99minutos/storefront/internal/infrastructure/db/mongo"
	"github.com/99minutos/storefront/internal/infrastructure/db/postgres"
	redisdb "github.com/99minutos/storefront/internal/infrastructure/db/redis"
	"github.com/99minutos/storefront/internal/infrastructure/queue"
	"github.com/99minutos/storefront/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second
	pingTimeout     = 2 * time.Second
)

// store is the persistence backend selected by STORE_DRIVER.
type store struct {
	users ports.UserRepository
	audit ports.AuditRepository
	ping  handler.Pinger
	close func(context.Context) error
	// purge is set when the backend cannot expire audit events by itself.
	purge func(ctx context.Context, cutoff time.Time) (int64, error)
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		audit := postgres.NewAuditRepository(db)
		log.Info().Str("driver", cfg.StoreDriver).Msg("store connected")
		return &store{
			users: postgres.NewUserRepository(db),
			audit: audit,
			ping:  db,
			close: db.Close,
			purge: audit.PurgeBefore,
		}, nil

	default:
		s, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		users := mongodb.NewUserRepository(s.DB)
		if err := users.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		if err := mongodb.EnsureAuditIndexes(ctx, s.DB, cfg.Audit.Retention); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ensure audit indexes: %w", err)
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("db", cfg.Mongo.Database).Msg("store connected")
		return &store{
			users: users,
			audit: mongodb.NewAuditRepository(s.DB),
			ping:  s,
			close: s.Close,
		}, nil
	}
}

func initLogger(cfg *config.Config) zerolog.Logger {
	return logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: appName,
		Version: version,
	})
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := initLogger(cfg)

	codec, err := service.NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}()

	rdb := redisdb.NewClient(redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := redisdb.Ping(ctx, rdb, pingTimeout); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, login throttling disabled until it recovers")
	}

	// Audit workers outlive the request context so queued events are
	// flushed after the HTTP server has drained.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, cfg.Audit.Buffer,
		service.NewAuditService(st.audit, logger.Component("audit")),
		logger.Component("audit"))
	dispatcher.Start(workerCtx)
	defer func() {
		stopWorkers()
		dispatcher.Wait()
	}()

	auth := service.NewAuthService(st.users, codec, logger.Component("auth"),
		service.WithLoginLimiter(redisdb.NewLoginLimiter(rdb, cfg.Login.MaxAttempts, cfg.Login.Window)),
		service.WithAuditPublisher(dispatcher),
		service.WithBcryptCost(cfg.BcryptCost),
	)

	if st.purge != nil && cfg.Audit.Retention > 0 {
		sched := cron.New()
		if _, err := sched.AddFunc("@daily", func() { purgeAudit(workerCtx, st, cfg.Audit.Retention, log) }); err != nil {
			return fmt.Errorf("schedule audit purge: %w", err)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	e := api.NewRouter(api.Deps{
		Auth:     auth,
		Users:    auth,
		Verifier: codec,
		Sessions: session.NewCookieStore(codec.TTL(), cfg.IsProduction()),
		Routes:   middleware.DefaultRouteTable(),
		Audit:    dispatcher,
		Readiness: map[string]handler.Pinger{
			"store": st.ping,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return redisdb.Ping(ctx, rdb, pingTimeout)
			}),
		},
		Log: logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Dur("token_ttl", cfg.TokenTTL).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
	return nil
}

func purgeAudit(ctx context.Context, st *store, retention time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := st.purge(ctx, time.Now().Add(-retention))
	if err != nil {
		log.Error().Err(err).Msg("audit purge failed")
		return
	}
	log.Info().Int64("deleted", n).Msg("audit events purged")
}

func createAdmin(ctx context.Context, name, email, password string) (*domain.User, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	log := initLogger(cfg)

	codec, err := service.NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.close(context.Background()) }()

	auth := service.NewAuthService(st.users, codec, logger.Component("cli"), service.WithBcryptCost(cfg.BcryptCost))
	u, err := auth.PromoteAdmin(ctx, name, email, password)
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	log.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("admin account ready")
	return u, nil
}
