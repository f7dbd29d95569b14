// Package main is the entrypoint for the covergen API server and worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/covergen/internal/api"
	"github.com/kiranshivaraju/covergen/internal/api/handler"
	mw "github.com/kiranshivaraju/covergen/internal/api/middleware"
	"github.com/kiranshivaraju/covergen/internal/api/response"
	"github.com/kiranshivaraju/covergen/internal/cache"
	"github.com/kiranshivaraju/covergen/internal/codec"
	"github.com/kiranshivaraju/covergen/internal/config"
	"github.com/kiranshivaraju/covergen/internal/covers"
	"github.com/kiranshivaraju/covergen/internal/dispatch"
	"github.com/kiranshivaraju/covergen/internal/imagen"
	"github.com/kiranshivaraju/covergen/internal/logging"
	"github.com/kiranshivaraju/covergen/internal/objectstore"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/nats-io/nats.go"
)

const (
	shutdownTimeout = 30 * time.Second
	mirrorTTL       = 30 * time.Minute
)

func main() {
	if err := run(); err != nil {
		logging.New(os.Getenv("COVERGEN_ENV")).Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Server.Env)
	logger.Info().
		Str("env", cfg.Server.Env).
		Str("storage_driver", cfg.Storage.Driver).
		Str("vertex_model", cfg.Vertex.Model).
		Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info().Msg("redis connected")

	// 5. Generation client, codec and object store
	generator := imagen.NewVertexClient(cfg.Vertex, imagen.NewTokenChain(cfg.Vertex))
	if cfg.Vertex.ProjectID == "" {
		logger.Warn().Msg("VERTEX_PROJECT_ID is not set; every generation attempt will fail")
	}

	objects, publicBase, err := newObjectStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Str("public_url", publicBase).Msg("object store ready")

	// 6. Orchestrator and executor
	pgStore := store.NewPostgresStore(pool)
	orchestrator := covers.NewOrchestrator(pgStore, generator, codec.NewWebP(), objects,
		covers.WithStatusMirror(redisCache, mirrorTTL),
		covers.WithKeyPrefix(cfg.Storage.KeyPrefix),
		covers.WithLogger(logger),
	)
	executor := dispatch.NewExecutor(orchestrator, redisCache, pgStore, cfg.Worker.InvocationTimeout, logger)

	// 7. Optional NATS transport
	var publisher handler.JobPublisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("covergen"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		subscriber := dispatch.NewSubscriber(nc, executor, cfg.NATS, logger)
		if err := subscriber.Start(ctx); err != nil {
			return fmt.Errorf("start subscriber: %w", err)
		}
		defer func() {
			if err := subscriber.Stop(); err != nil {
				logger.Warn().Err(err).Msg("drain subscriber")
			}
		}()
		publisher = dispatch.NewPublisher(nc, cfg.NATS.Subject)
		logger.Info().Str("url", cfg.NATS.URL).Msg("nats connected")
	} else {
		logger.Warn().Msg("NATS_URL is not set; cover job creation is disabled")
	}

	// 8. Stale job sweeper
	sweeper := dispatch.NewSweeper(pgStore, redisCache, cfg.Worker.StaleJobTimeout, cfg.Worker.SweepInterval, logger)
	go sweeper.Run(ctx)

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Logger:    logger,
		Auth:      mw.NewAuth(cfg.Server.AuthToken, cfg.Server.AuthTokenHash),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMin),

		HealthHandler:    healthHandler(pgStore, redisCache),
		GenerateHandler:  handler.NewGenerateHandler(executor),
		GetJobHandler:    handler.NewGetJobHandler(pgStore, redisCache, publicBase),
		JobStatusHandler: handler.NewJobStatusHandler(pgStore, redisCache),
		CreateJobHandler: handler.NewCreateJobHandler(pgStore, publisher),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation runs synchronously inside POST /covers/generate.
		WriteTimeout: cfg.Worker.InvocationTimeout + shutdownTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info().Msg("server stopped gracefully")
	return nil
}

// newObjectStore builds the configured artifact store and the public base URL
// that stored keys resolve against.
func newObjectStore(cfg config.StorageConfig) (objectstore.Store, string, error) {
	switch cfg.Driver {
	case "filesystem":
		fs, err := objectstore.NewFileStore(cfg.LocalPath)
		if err != nil {
			return nil, "", err
		}
		return fs, cfg.PublicURL, nil
	case "r2":
		s3Store := objectstore.NewS3Store(objectstore.S3Config{
			Endpoint:        cfg.R2Endpoint(),
			Bucket:          cfg.Bucket,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		publicBase := cfg.PublicURL
		if publicBase == "" {
			publicBase = objectstore.DefaultPublicURL(cfg.Bucket)
		}
		return s3Store, publicBase, nil
	default:
		return nil, "", fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Pinger is implemented by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(s Pinger, c Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
