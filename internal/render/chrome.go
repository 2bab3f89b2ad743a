package render

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrBrowserUnavailable is returned when no browser process could be started
var ErrBrowserUnavailable = errors.New("headless browser unavailable")

// A4 in inches, and a 20px margin at 96 px per inch
const (
	a4WidthIn  = 8.27
	a4HeightIn = 11.69
	marginIn   = 20.0 / 96.0
)

// A4 viewport in CSS pixels for raster output
const (
	viewportWidth  = 794
	viewportHeight = 1123
)

// ChromeConfig configures browser launches
type ChromeConfig struct {
	// ExecPath overrides browser discovery
	ExecPath string
	// NoSandbox disables the Chrome sandbox, needed in most containers
	NoSandbox bool
	// ReadyTimeout bounds the wait for the document body
	ReadyTimeout time.Duration
}

// ChromeRenderer prints HTML with a headless Chrome process. Every call
// launches its own process and tears it down before returning.
type ChromeRenderer struct {
	cfg    ChromeConfig
	logger *zap.Logger
}

// NewChromeRenderer creates a renderer
func NewChromeRenderer(cfg ChromeConfig, logger *zap.Logger) *ChromeRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	return &ChromeRenderer{cfg: cfg, logger: logger}
}

// PDF prints html to an A4 PDF with 20px margins and backgrounds
func (r *ChromeRenderer) PDF(ctx context.Context, html string) ([]byte, error) {
	var out []byte
	err := r.run(ctx, html, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(a4WidthIn).
			WithPaperHeight(a4HeightIn).
			WithMarginTop(marginIn).
			WithMarginBottom(marginIn).
			WithMarginLeft(marginIn).
			WithMarginRight(marginIn).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("print to pdf: %w", err)
		}
		out = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PNG rasterizes html at device scale factor 2
func (r *ChromeRenderer) PNG(ctx context.Context, html string) ([]byte, error) {
	var out []byte
	err := r.run(ctx, html,
		chromedp.EmulateViewport(viewportWidth, viewportHeight, chromedp.EmulateScale(2)),
		chromedp.FullScreenshot(&out, 100),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU)
	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

// run launches a browser, loads html, waits for the body and runs actions.
// The deferred cancels kill the process on every path out.
func (r *ChromeRenderer) run(ctx context.Context, html string, actions ...chromedp.Action) error {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			r.logger.Debug("chrome: " + fmt.Sprintf(format, args...))
		}))
	defer cancelBrowser()

	start := time.Now()
	if err := chromedp.Run(browserCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	r.logger.Debug("browser started", zap.Duration("startup", time.Since(start)))

	readyCtx, cancelReady := context.WithTimeout(browserCtx, r.cfg.ReadyTimeout)
	defer cancelReady()
	if err := chromedp.Run(readyCtx,
		chromedp.Navigate("about:blank"),
		setDocument(html),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("load document: %w", err)
	}

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func setDocument(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
	})
}

// FindBrowser reports whether a Chrome binary is reachable from path or
// PATH, for callers that want to fail fast
func FindBrowser(path string) bool {
	if path != "" {
		_, err := exec.LookPath(path)
		return err == nil
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
