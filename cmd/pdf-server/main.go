// Package main provides the standalone PDF export service entry point.
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
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/api/handlers"
	"github.com/drfirst/go-rxpad/internal/api/middleware"
	"github.com/drfirst/go-rxpad/internal/config"
	"github.com/drfirst/go-rxpad/internal/export"
	"github.com/drfirst/go-rxpad/internal/logging"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/observability/tracing"
	"github.com/drfirst/go-rxpad/internal/render"
)

const serviceName = "pdf-server"

func main() {
	cfg, err := config.Load("3001")
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	tp, err := tracing.Init(context.Background(), tracing.NewConfig(serviceName, cfg.Tracing.Enabled, cfg.Tracing.OTLPEndpoint))
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer tp.Close(logger)

	m := metrics.New()

	ecfg := export.DefaultConfig()
	ecfg.Timeout = cfg.Export.Timeout
	ecfg.MaxConcurrent = cfg.Export.MaxConcurrent
	exporter, stop, err := export.NewLocal(render.ChromeConfig{
		ExecPath:  cfg.Export.ChromePath,
		NoSandbox: cfg.Export.NoSandbox,
	}, ecfg, m, logger)
	if err != nil {
		logger.Fatal("failed to create exporter", zap.Error(err))
	}
	defer func() { _ = stop() }()

	pdfHandler := handlers.NewPDFServerHandler(exporter, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(serviceName))

	r.Handle("/metrics", metrics.Handler())
	r.Mount("/", pdfHandler.Routes())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Export.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

	logger.Info("PDF server running", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}
