// main is the entry point of the Students API application.
//
// STARTUP SEQUENCE:
//  1. Load configuration (.env, optional YAML file, environment)
//  2. Initialise the logger
//  3. Open the storage pool and make sure the table exists
//  4. Build the rate limiter (in memory, or shared through Redis)
//  5. Assemble the router and middleware chain
//  6. Start the HTTP server in a separate goroutine
//  7. Block until an OS signal (Ctrl+C / kill) arrives
//  8. Gracefully shut down: finish in-flight requests, then release the
//     pool and the Redis client
//
// RUNNING THE SERVER:
//
//	go run ./cmd/students-api --config=config/local.yaml
//
// or, configured from the environment alone:
//
//	LOCAL_DATABASE_URL=postgres://... go run ./cmd/students-api
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aanand-mishra/students-service/internal/config"
	"github.com/aanand-mishra/students-service/internal/http/router"
	"github.com/aanand-mishra/students-service/internal/logger"
	"github.com/aanand-mishra/students-service/internal/ratelimit"
	"github.com/aanand-mishra/students-service/internal/storage/backend"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Installed as the default so slog.Info & co. in handlers and
	// storage use it too.
	appLogger, err := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(appLogger)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("students-api stopped with an error", logger.Err(err))
		os.Exit(1)
	}
}

// run owns every process-scoped resource: whatever it opens it also
// closes, on both the success and the error path.
func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting students-api",
		slog.String("env", cfg.Env),
		slog.String("driver", cfg.Driver),
		slog.Bool("tls", cfg.UseTLS()),
	)

	ctx := context.Background()

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", logger.Err(err))
		}
		log.Info("storage closed")
	}()

	if !cfg.SkipMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		log.Info("students table ready")
	}

	// ── 4. Rate Limiter ───────────────────────────────────────────────────
	limitStore := ratelimit.NewMemoryStore()
	if cfg.RedisAddr != "" {
		client, err := ratelimit.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer client.Close()

		limitStore, err = ratelimit.NewRedisStore(client, ratelimit.Prefix)
		if err != nil {
			return err
		}
		log.Info("rate limit counters shared through redis", slog.String("addr", cfg.RedisAddr))
	}

	rateLimiter, err := ratelimit.New(limitStore, cfg.Max, cfg.Window())
	if err != nil {
		return err
	}

	// ── 5. Router ─────────────────────────────────────────────────────────
	handler := router.New(router.Options{
		Storage:     store,
		Limiter:     rateLimiter,
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
	})

	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr(),
		Handler: handler,

		// Timeouts keep slow clients from holding connections forever.
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	// ListenAndServe returns http.ErrServerClosed after Shutdown; that
	// is the normal way out and not reported.
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		log.Info("shutdown signal received, stopping server...")
	case err := <-serveErr:
		return err
	}

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	// Stop accepting connections and wait for in-flight requests; the
	// deferred calls above then release Redis and the pool.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}
