package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
)

// GeneratePDFPath is the pdf-server render endpoint
const GeneratePDFPath = "/api/generate-pdf"

// ErrorBody is the JSON error shape returned by the pdf-server
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client exports through a remote pdf-server
type Client struct {
	httpClient *resty.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a client for the pdf-server at baseURL
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/pdf")

	return &Client{
		httpClient: client,
		metrics:    m,
		logger:     logger,
	}
}

// PDF posts doc to the pdf-server and returns the PDF bytes
func (c *Client) PDF(ctx context.Context, doc document.Document) ([]byte, error) {
	start := time.Now()
	out, err := c.generate(ctx, doc)
	if err != nil {
		rf, _ := AsRenderFailure(err)
		c.metrics.ExportDone(string(FormatPDF), string(rf.Cause), time.Since(start))
		c.logger.Warn("remote export failed",
			zap.String("cause", string(rf.Cause)),
			zap.Error(err))
		return nil, err
	}
	c.metrics.ExportDone(string(FormatPDF), "", time.Since(start))
	return out, nil
}

// PNG is not offered by the pdf-server
func (c *Client) PNG(_ context.Context, _ document.Document) ([]byte, error) {
	c.metrics.ExportDone(string(FormatPNG), string(CauseUnavailable), 0)
	return nil, &RenderFailure{Cause: CauseUnavailable, Message: "export service does not produce images"}
}

func (c *Client) generate(ctx context.Context, doc document.Document) ([]byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(doc).
		Post(GeneratePDFPath)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, &RenderFailure{Cause: CauseTimeout, Message: "export service timed out", Err: err}
		}
		return nil, &RenderFailure{Cause: CauseUnreachable, Message: "export service unreachable", Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		var body ErrorBody
		msg := fmt.Sprintf("export service returned status %d", resp.StatusCode())
		if json.Unmarshal(resp.Body(), &body) == nil && body.Message != "" {
			msg = body.Message
		}
		return nil, &RenderFailure{Cause: CauseCrashed, Message: msg}
	}

	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
		return nil, &RenderFailure{Cause: CauseCrashed, Message: fmt.Sprintf("export service returned %q", ct)}
	}
	if len(resp.Body()) == 0 {
		return nil, &RenderFailure{Cause: CauseCrashed, Message: "export service returned an empty document"}
	}
	return resp.Body(), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
