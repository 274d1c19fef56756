package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/scp/internal/config"
	"github.com/ehr/scp/internal/domain/classification"
	"github.com/ehr/scp/internal/domain/evaluation"
	"github.com/ehr/scp/internal/domain/sessionsync"
	"github.com/ehr/scp/internal/domain/staffing"
	"github.com/ehr/scp/internal/platform/auth"
	"github.com/ehr/scp/internal/platform/cache"
	"github.com/ehr/scp/internal/platform/db"
	"github.com/ehr/scp/internal/platform/middleware"
	"github.com/ehr/scp/internal/platform/upstream"
)

const requestTimeout = 30 * time.Second

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app is the wired server. pool and rdb are nil when their URL is unset.
type app struct {
	echo     *echo.Echo
	registry *sessionsync.Registry
	pool     *pgxpool.Pool
	rdb      *redis.Client
}

func (a *app) close() {
	a.registry.Stop()
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token act as admin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.close()

	a.registry.Start(ctx)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("upstream", cfg.UpstreamURL).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	var checks []db.Check

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		checks = append(checks, db.PoolCheck(pool))
		logger.Info().Msg("connected to journal database")
	}

	var store sessionsync.SnapshotStore = sessionsync.NewMemoryStore()
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			if a.pool != nil {
				a.pool.Close()
			}
			return nil, err
		}
		a.rdb = rdb
		store = sessionsync.NewRedisStore(rdb, sessionsync.DefaultSnapshotTTL)
		checks = append(checks, db.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info().Msg("session snapshots shared through redis")
	}

	client := upstream.New(upstream.Config{
		BaseURL: cfg.UpstreamURL,
		Token:   cfg.UpstreamToken,
		Timeout: cfg.UpstreamTimeout,
		Retries: cfg.UpstreamRetries,
	}, logger.With().Str("component", "upstream").Logger())

	resolver := classification.NewResolver(client, logger)

	a.registry = sessionsync.NewRegistry(client, store, sessionsync.Options{
		PollInterval:    cfg.PollInterval,
		ViewIdleTimeout: cfg.ViewIdleTimeout,
	}, logger.With().Str("component", "sessionsync").Logger())

	engine := evaluation.NewEngine(client, a.registry, logger.With().Str("component", "evaluation").Logger())
	for entry, p := range evaluation.DefaultPolicies(cfg.RecordNumberMinLength) {
		engine.SetPolicy(entry, p)
	}
	if a.pool != nil {
		engine.SetJournal(evaluation.NewJournalRepoPG(a.pool))
	}

	staffingSvc := staffing.NewService(
		staffing.NewEngine(hoursFromConfig(cfg), cfg.StandardWeeklyHours),
		client,
		logger.With().Str("component", "staffing").Logger(),
	)

	a.echo = newEcho(cfg, logger, checks)
	api := a.echo.Group("/api/v1", authMiddleware(cfg), middleware.Audit(logger))

	classification.NewHandler(resolver).RegisterRoutes(api)
	evaluation.NewHandler(engine, resolver).RegisterRoutes(api)
	sessionsync.NewHandler(a.registry).RegisterRoutes(api)
	staffing.NewHandler(staffingSvc, a.registry).RegisterRoutes(api)

	return a, nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, checks []db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader, sessionsync.ViewIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, echo.HeaderContentDisposition},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/ready", db.HealthHandler(checks...))

	return e
}

// authMiddleware verifies bearer tokens. Development accepts anonymous
// requests as an admin user.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func hoursFromConfig(cfg *config.Config) staffing.HourConstants {
	return staffing.HourConstants{
		Minimal:        cfg.HoursMinimal,
		Intermediate:   cfg.HoursIntermediate,
		HighDependency: cfg.HoursHighDependency,
		SemiIntensive:  cfg.HoursSemiIntensive,
		Intensive:      cfg.HoursIntensive,
	}
}
