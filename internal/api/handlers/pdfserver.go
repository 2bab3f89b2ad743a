package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/export"
)

// maxDocumentBytes bounds a generate-pdf request body
const maxDocumentBytes = 1 << 20

// PDFServerHandler is the standalone export service used by remote clients
type PDFServerHandler struct {
	exporter export.Exporter
	now      func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewPDFServerHandler creates a new pdf-server handler
func NewPDFServerHandler(exporter export.Exporter, logger *zap.Logger) *PDFServerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFServerHandler{
		exporter: exporter,
		now:      time.Now,
		logger:   logger,
		tracer:   otel.Tracer("pdf-server"),
	}
}

// Routes returns the pdf-server router
func (h *PDFServerHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Post(export.GeneratePDFPath, h.GeneratePDF)
	return r
}

// Health handles GET /health
func (h *PDFServerHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "PDF service is running",
	})
}

// GeneratePDF handles POST /api/generate-pdf. An empty body prints the
// sample prescription.
func (h *PDFServerHandler) GeneratePDF(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "generate_pdf")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.failStatus(w, span, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds the %d byte limit", tooLarge.Limit))
			return
		}
		h.fail(w, span, err)
		return
	}

	doc := document.Sample(h.now())
	if len(bytes.TrimSpace(body)) > 0 {
		var in document.Document
		if err := json.Unmarshal(body, &in); err != nil {
			h.fail(w, span, err)
			return
		}
		doc = document.Normalize(in)
	}
	span.SetAttributes(attribute.Int("medications", len(doc.Medications)))

	out, err := h.exporter.PDF(ctx, doc)
	if err != nil {
		h.fail(w, span, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="prescription.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *PDFServerHandler) fail(w http.ResponseWriter, span trace.Span, err error) {
	h.failStatus(w, span, http.StatusInternalServerError, err)
}

func (h *PDFServerHandler) failStatus(w http.ResponseWriter, span trace.Span, status int, err error) {
	span.RecordError(err)
	h.logger.Error("failed to generate pdf", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, export.ErrorBody{
		Error:   "Failed to generate PDF",
		Message: err.Error(),
	})
}
