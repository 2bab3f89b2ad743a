// Package main provides the outbox relay service entry point.
// It publishes prescription events written by the Postgres collection.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/api/handlers"
	"github.com/drfirst/go-rxpad/internal/config"
	"github.com/drfirst/go-rxpad/internal/infrastructure/postgres"
	"github.com/drfirst/go-rxpad/internal/infrastructure/redpanda"
	"github.com/drfirst/go-rxpad/internal/logging"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
)

const serviceName = "outbox-relay"

func main() {
	cfg, err := config.Load("9091")
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()
	m := metrics.New()

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Make sure the topics exist before producing
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	adminCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := admin.EnsureTopics(adminCtx); err != nil {
		logger.Fatal("topic bootstrap failed", zap.Error(err))
	}
	cancel()
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, m, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	outbox := postgres.NewOutbox(pool, producer, postgres.DefaultOutboxConfig(), m, logger)
	outbox.Start()
	logger.Info("outbox relay started")

	// Health and metrics
	health := handlers.NewHealthHandler(serviceName, map[string]handlers.Check{
		"postgres": pool.Ping,
		"redpanda": producer.Ping,
	})
	r := chi.NewRouter()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = server.Shutdown(shutdownCtx)
	outbox.Stop()
	logger.Info("outbox relay stopped")
}
