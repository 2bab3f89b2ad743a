package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/render"
	"github.com/drfirst/go-rxpad/pkg/circuitbreaker"
	"github.com/drfirst/go-rxpad/pkg/workerpool"
)

// Browser prints HTML markup; *render.ChromeRenderer is the production one
type Browser interface {
	PDF(ctx context.Context, html string) ([]byte, error)
	PNG(ctx context.Context, html string) ([]byte, error)
}

// Format names an output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
)

// Config holds local export configuration
type Config struct {
	// Timeout bounds a single render, queueing included
	Timeout time.Duration
	// MaxConcurrent is the number of browser processes allowed at once
	MaxConcurrent int
	// QueueSize is the number of renders allowed to wait for a slot
	QueueSize int
	Breaker   circuitbreaker.Config
}

// DefaultConfig returns defaults for a small deployment
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		MaxConcurrent: 2,
		QueueSize:     32,
		Breaker:       circuitbreaker.DefaultConfig("chrome-renderer"),
	}
}

type renderJob struct {
	format Format
	markup string
}

// Service exports documents through a browser with bounded concurrency,
// a per-request deadline and a circuit breaker
type Service struct {
	browser Browser
	html    render.HTMLRenderer
	pool    *workerpool.Pool
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewService creates a service; call Start before use and Stop when done
func NewService(b Browser, cfg Config, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	if b == nil {
		return nil, errors.New("browser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultConfig().Breaker
	}

	s := &Service{
		browser: b,
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("export"),
	}

	pool, err := workerpool.New(workerpool.Config{
		Workers:   cfg.MaxConcurrent,
		QueueSize: cfg.QueueSize,
	}, s.work, logger)
	if err != nil {
		return nil, fmt.Errorf("create render pool: %w", err)
	}
	s.pool = pool

	bcfg := cfg.Breaker
	bcfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	bcfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.BreakerState(name, to.Ordinal())
	}
	breaker, err := circuitbreaker.New(bcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create render breaker: %w", err)
	}
	s.breaker = breaker

	return s, nil
}

// Start launches the render workers
func (s *Service) Start() { s.pool.Start() }

// Stop waits for in-flight renders and stops the workers
func (s *Service) Stop() error {
	stats := s.pool.Stats()
	s.logger.Info("stopping export service",
		zap.Int64("renders_completed", stats.TasksCompleted),
		zap.Int64("renders_failed", stats.TasksFailed))
	return s.pool.Stop()
}

// Check reports an error while the breaker is open or the render queue is
// close to full. It backs the readiness probe.
func (s *Service) Check(context.Context) error {
	if s.breaker.IsOpen() {
		return errors.New("renderer breaker open")
	}
	if !s.pool.IsHealthy() {
		stats := s.pool.Stats()
		return fmt.Errorf("render queue at %d of %d", stats.QueueDepth, stats.QueueCapacity)
	}
	return nil
}

// PDF exports doc as an A4 PDF
func (s *Service) PDF(ctx context.Context, doc document.Document) ([]byte, error) {
	return s.export(ctx, FormatPDF, doc)
}

// PNG exports doc as a PNG image
func (s *Service) PNG(ctx context.Context, doc document.Document) ([]byte, error) {
	return s.export(ctx, FormatPNG, doc)
}

func (s *Service) export(ctx context.Context, format Format, doc document.Document) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "export_"+string(format))
	defer span.End()
	start := time.Now()

	out, err := s.render(ctx, format, doc)
	if err != nil {
		rf := classify(err)
		span.RecordError(rf)
		span.SetAttributes(attribute.String("render.cause", string(rf.Cause)))
		s.metrics.ExportDone(string(format), string(rf.Cause), time.Since(start))
		s.logger.Warn("export failed",
			zap.String("format", string(format)),
			zap.String("cause", string(rf.Cause)),
			zap.Error(err))
		return nil, rf
	}

	s.metrics.ExportDone(string(format), "", time.Since(start))
	span.SetAttributes(attribute.Int("render.bytes", len(out)))
	return out, nil
}

func (s *Service) render(ctx context.Context, format Format, doc document.Document) ([]byte, error) {
	markup, err := s.html.PrintString(document.NewLayout(doc))
	if err != nil {
		return nil, fmt.Errorf("build print markup: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		res, err := s.pool.SubmitWait(ctx, &workerpool.Task{
			ID:      uuid.NewString(),
			Payload: renderJob{format: format, markup: markup},
		})
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, res.Error
		}
		return res.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// work runs on a pool worker and owns one browser process for its duration
func (s *Service) work(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	job := task.Payload.(renderJob)
	defer s.metrics.RenderStarted()()

	var (
		out []byte
		err error
	)
	switch job.format {
	case FormatPNG:
		out, err = s.browser.PNG(ctx, job.markup)
	default:
		out, err = s.browser.PDF(ctx, job.markup)
	}
	if err == nil && len(out) == 0 {
		err = errEmptyOutput
	}
	if err != nil {
		return &workerpool.Result{Error: err}
	}
	return &workerpool.Result{Success: true, Data: out}
}
