// Copyright (c) 2026 NerdHQ. All rights reserved.

// Command api is the entry point for the Gatekeeper HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Inspect pending database migrations (applied via the API, not here).
//  6. Wire HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerdhq/gatekeeper/internal/api"
	"github.com/nerdhq/gatekeeper/internal/platform/config"
	"github.com/nerdhq/gatekeeper/internal/platform/constants"
	"github.com/nerdhq/gatekeeper/internal/platform/mailer"
	"github.com/nerdhq/gatekeeper/internal/platform/migration"
	pgstore "github.com/nerdhq/gatekeeper/internal/platform/postgres"
	redisstore "github.com/nerdhq/gatekeeper/internal/platform/redis"
	"github.com/nerdhq/gatekeeper/internal/system"
	"github.com/nerdhq/gatekeeper/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Gatekeeper] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	// Schema changes are applied through POST /api/v1/migrations by an
	// account holding create:migration. Startup only reports drift.
	migrationRunner := migration.NewRunner(cfg.DatabaseURL, cfg.MigrationPath, log)
	pending, err := migrationRunner.Pending()
	must(log, err, "inspect migrations")
	if len(pending) > 0 {
		log.Warn("pending_migrations_detected", slog.Int("count", len(pending)))
	}

	// ── 6. Outbound Email ─────────────────────────────────────────────────
	var mail mailer.Mailer = mailer.NewLogMailer(log)
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	} else {
		log.Warn("smtp_not_configured_using_log_mailer")
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	userRepository := auth.NewUserRepository(pool)
	tokenRepository := auth.NewActivationTokenRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	sessionCache := auth.NewSessionCache(rdb)

	userService := auth.NewService(userRepository)
	sessionService := auth.NewSessionService(sessionRepository, sessionCache, log)
	activationService := auth.NewActivationService(
		tokenRepository, userService, mail, cfg.EmailFrom, cfg.WebOrigin, log,
	)

	authHandler := auth.NewHandler(userService, sessionService, activationService, cfg.IsProduction())

	statusService := system.NewStatusService(pool)
	systemHandler := system.NewHandler(statusService, migrationRunner)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		System:    systemHandler,
	}

	viewer := auth.ViewerMiddleware(sessionService, userService)
	server := api.NewServer(cfg, log, viewer, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
