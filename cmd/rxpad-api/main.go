// Package main provides the rxpad API service entry point.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/api/handlers"
	"github.com/drfirst/go-rxpad/internal/api/middleware"
	"github.com/drfirst/go-rxpad/internal/collection"
	"github.com/drfirst/go-rxpad/internal/config"
	"github.com/drfirst/go-rxpad/internal/draft"
	"github.com/drfirst/go-rxpad/internal/export"
	"github.com/drfirst/go-rxpad/internal/infrastructure/postgres"
	"github.com/drfirst/go-rxpad/internal/logging"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/observability/tracing"
	"github.com/drfirst/go-rxpad/internal/profile"
	"github.com/drfirst/go-rxpad/internal/render"
	"github.com/drfirst/go-rxpad/internal/storage"
	"github.com/drfirst/go-rxpad/internal/wizard"
)

const serviceName = "rxpad-api"

func main() {
	cfg, err := config.Load("8080")
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.NewConfig(serviceName, cfg.Tracing.Enabled, cfg.Tracing.OTLPEndpoint))
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer tp.Close(logger)

	m := metrics.New()
	checks := map[string]handlers.Check{}

	// Draft and profile slot
	var slot storage.Slot = storage.NewMemorySlot()
	if cfg.StorageBackend == config.StorageRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		redisSlot := storage.NewRedisSlot(client, cfg.Redis.Prefix)
		if err := redisSlot.Ping(ctx); err != nil {
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		checks["redis"] = redisSlot.Ping
		slot = redisSlot
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Persisted collection
	var coll collection.Collection = collection.NewSlotCollection(slot, logger)
	if cfg.Mode == config.ModeFull {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("database ping failed", zap.Error(err))
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		checks["postgres"] = pool.Ping
		coll = collection.NewPostgresCollection(pool, logger)
		logger.Info("connected to database")
	}

	// Exporters
	exporters := handlers.Exporters{Primitive: export.NewPrimitiveExporter(m)}
	if cfg.Export.Mode == config.ExportRemote {
		exporters.Browser = export.NewClient(cfg.Export.ServiceURL, cfg.Export.Timeout, m, logger)
		logger.Info("exporting through pdf-server", zap.String("url", cfg.Export.ServiceURL))
	} else {
		ecfg := export.DefaultConfig()
		ecfg.Timeout = cfg.Export.Timeout
		ecfg.MaxConcurrent = cfg.Export.MaxConcurrent
		local, stop, err := export.NewLocal(render.ChromeConfig{
			ExecPath:  cfg.Export.ChromePath,
			NoSandbox: cfg.Export.NoSandbox,
		}, ecfg, m, logger)
		if err != nil {
			logger.Fatal("failed to create exporter", zap.Error(err))
		}
		defer func() { _ = stop() }()
		if c, ok := local.(export.Checker); ok {
			checks["export"] = c.Check
		}
		exporters.Browser = local
	}

	// Wizard
	profiles := profile.NewStore(slot)
	opts := []wizard.Option{wizard.WithMetrics(m), wizard.WithLogger(logger)}
	if cfg.Wizard.ReviewStep {
		opts = append(opts, wizard.WithReviewStep())
	}
	if cfg.Wizard.ProfileAutofill {
		opts = append(opts, wizard.WithProfile(profiles))
	}
	wiz := wizard.New(draft.NewStore(slot, logger, draft.WithMetrics(m)), coll, opts...)
	if _, err := wiz.Start(ctx); err != nil {
		logger.Fatal("failed to start wizard", zap.Error(err))
	}

	// Handlers
	health := handlers.NewHealthHandler(serviceName, checks)
	draftHandler := handlers.NewDraftHandler(wiz, logger)
	prescriptionHandler := handlers.NewPrescriptionHandler(coll, exporters, m, logger)
	profileHandler := handlers.NewProfileHandler(profiles, logger)
	sampleHandler := handlers.NewSampleHandler(exporters, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(serviceName))

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", handlers.Catalog)
		r.Mount("/profile", profileHandler.Routes())
		r.Mount("/draft", draftHandler.Routes())
		r.Mount("/prescriptions", prescriptionHandler.Routes())
		r.Mount("/sample", sampleHandler.Routes())
	})

	// Exports can take the full render timeout
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Export.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting rxpad API",
		zap.String("port", cfg.Port),
		zap.String("mode", cfg.Mode),
		zap.String("storage", cfg.StorageBackend),
		zap.String("export", cfg.Export.Mode))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}
