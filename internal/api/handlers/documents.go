package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/export"
	"github.com/drfirst/go-rxpad/internal/render"
)

// Engine names accepted by the ?engine= query parameter
const (
	EngineBrowser   = "browser"
	EnginePrimitive = "primitive"
)

// Exporters holds the export paths a request can choose between.
// Browser serves PNG and the default PDF engine.
type Exporters struct {
	Browser   export.Exporter
	Primitive export.Exporter
}

func (e Exporters) pick(engine string) (export.Exporter, bool) {
	switch engine {
	case "", EngineBrowser:
		return e.Browser, e.Browser != nil
	case EnginePrimitive:
		return e.Primitive, e.Primitive != nil
	default:
		return nil, false
	}
}

// documents renders one Document to the preview page or an export format
type documents struct {
	exporters Exporters
	html      render.HTMLRenderer
	logger    *zap.Logger
}

func (d documents) preview(w http.ResponseWriter, doc document.Document) {
	var buf bytes.Buffer
	if err := d.html.Preview(&buf, document.NewLayout(doc)); err != nil {
		d.logger.Error("failed to render preview", zap.Error(err))
		jsonError(w, "failed to render preview", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (d documents) pdf(ctx context.Context, w http.ResponseWriter, r *http.Request, doc document.Document, filename string) {
	engine := r.URL.Query().Get("engine")
	exp, ok := d.exporters.pick(engine)
	if !ok {
		jsonError(w, "unknown or unconfigured engine: "+engine, http.StatusBadRequest)
		return
	}
	out, err := exp.PDF(ctx, doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeFile(w, "application/pdf", filename+".pdf", out)
}

func (d documents) png(ctx context.Context, w http.ResponseWriter, doc document.Document, filename string) {
	if d.exporters.Browser == nil {
		jsonError(w, "image export is not configured", http.StatusServiceUnavailable)
		return
	}
	out, err := d.exporters.Browser.PNG(ctx, doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeFile(w, "image/png", filename+".png", out)
}

// SampleHandler serves the fixed demo prescription
type SampleHandler struct {
	documents
	now    func() time.Time
	tracer trace.Tracer
}

// NewSampleHandler creates a new sample handler
func NewSampleHandler(exporters Exporters, logger *zap.Logger) *SampleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampleHandler{
		documents: documents{exporters: exporters, logger: logger},
		now:       time.Now,
		tracer:    otel.Tracer("sample-handler"),
	}
}

// Routes returns the router for sample endpoints
func (h *SampleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/preview", h.Preview)
	r.Get("/pdf", h.PDF)
	return r
}

// Preview handles GET /sample/preview
func (h *SampleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.preview(w, document.Sample(h.now()))
}

// PDF handles GET /sample/pdf
func (h *SampleHandler) PDF(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "export_sample_pdf",
		trace.WithAttributes(attribute.String("engine", r.URL.Query().Get("engine"))))
	defer span.End()

	h.pdf(ctx, w, r, document.Sample(h.now()), "sample-prescription")
}
