package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/render"
)

// PrimitiveExporter paints the primitive tree straight to PDF without a
// browser. It is the fallback when Chrome is not installed.
type PrimitiveExporter struct {
	metrics *metrics.Metrics
}

// NewPrimitiveExporter creates an exporter
func NewPrimitiveExporter(m *metrics.Metrics) *PrimitiveExporter {
	return &PrimitiveExporter{metrics: m}
}

// PDF paints doc as an A4 PDF
func (e *PrimitiveExporter) PDF(ctx context.Context, doc document.Document) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		rf := classify(err)
		e.metrics.ExportDone(string(FormatPDF), string(rf.Cause), time.Since(start))
		return nil, rf
	}

	out, err := paint(doc, render.WritePrimitivePDF)
	if err != nil {
		rf := classify(err)
		e.metrics.ExportDone(string(FormatPDF), string(rf.Cause), time.Since(start))
		return nil, rf
	}
	e.metrics.ExportDone(string(FormatPDF), "", time.Since(start))
	return out, nil
}

// paint runs write over the primitive tree of doc. A panic inside the
// painter is returned as a crashed RenderFailure.
func paint(doc document.Document, write func(io.Writer, render.Page) error) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &RenderFailure{
				Cause:   CauseCrashed,
				Message: "renderer crashed",
				Err:     fmt.Errorf("paint pdf: %v", r),
			}
		}
	}()

	var buf bytes.Buffer
	if err = write(&buf, render.BuildPrimitives(document.NewLayout(doc))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PNG is not supported by the primitive painter
func (e *PrimitiveExporter) PNG(_ context.Context, _ document.Document) ([]byte, error) {
	e.metrics.ExportDone(string(FormatPNG), string(CauseUnavailable), 0)
	return nil, &RenderFailure{Cause: CauseUnavailable, Message: "image export requires a headless browser"}
}
