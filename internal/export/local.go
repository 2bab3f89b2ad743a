package export

import (
	"context"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/render"
)

// Checker is implemented by exporters that can report readiness
type Checker interface {
	Check(ctx context.Context) error
}

// NewLocal returns a started browser-backed Service when a Chrome binary is
// found, and the primitive exporter otherwise. stop releases the render
// workers and is safe to call in both cases.
func NewLocal(chrome render.ChromeConfig, cfg Config, m *metrics.Metrics, logger *zap.Logger) (Exporter, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !render.FindBrowser(chrome.ExecPath) {
		logger.Warn("no chrome binary found, exporting with the primitive renderer",
			zap.String("chrome_path", chrome.ExecPath))
		return NewPrimitiveExporter(m), func() error { return nil }, nil
	}

	s, err := NewService(render.NewChromeRenderer(chrome, logger), cfg, m, logger)
	if err != nil {
		return nil, nil, err
	}
	s.Start()
	logger.Info("browser export enabled", zap.Int("max_concurrent", cfg.MaxConcurrent))
	return s, s.Stop, nil
}
