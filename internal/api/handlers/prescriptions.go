package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/collection"
	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
)

// PrescriptionHandler serves the persisted collection and its exports
type PrescriptionHandler struct {
	coll    collection.Collection
	docs    documents
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewPrescriptionHandler creates a new prescription handler
func NewPrescriptionHandler(coll collection.Collection, exporters Exporters, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		coll:    coll,
		docs:    documents{exporters: exporters, logger: logger},
		metrics: m,
		now:     time.Now,
		logger:  logger,
		tracer:  otel.Tracer("prescription-handler"),
	}
}

// Routes returns the router for prescription endpoints
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/preview", h.Preview)
	r.Get("/{id}/pdf", h.PDF)
	r.Get("/{id}/png", h.PNG)

	return r
}

// ListResponse is the body of GET /prescriptions
type ListResponse struct {
	Prescriptions []prescription.Prescription `json:"prescriptions"`
	Count         int                         `json:"count"`
}

// List handles GET /prescriptions?search=
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "list_prescriptions")
	defer span.End()

	list, err := h.coll.List(ctx, collection.Filter{Name: r.URL.Query().Get("search")})
	if err != nil {
		span.RecordError(err)
		h.logger.Error("failed to list prescriptions", zap.Error(err))
		writeError(w, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(list)))
	writeJSON(w, http.StatusOK, ListResponse{Prescriptions: list, Count: len(list)})
}

// Stats handles GET /prescriptions/stats
func (h *PrescriptionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "prescription_stats")
	defer span.End()

	list, err := h.coll.List(ctx, collection.Filter{})
	if err != nil {
		span.RecordError(err)
		h.logger.Error("failed to list prescriptions", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collection.Summarize(list, h.now()))
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /prescriptions/{id}. Deleting an unknown id succeeds.
func (h *PrescriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.tracer.Start(r.Context(), "delete_prescription",
		trace.WithAttributes(attribute.String("prescription_id", id)))
	defer span.End()

	_, err := h.coll.Get(ctx, id)
	existed := err == nil
	if err != nil && !errors.Is(err, collection.ErrNotFound) {
		span.RecordError(err)
		h.logger.Error("failed to load prescription", zap.String("id", id), zap.Error(err))
		writeError(w, err)
		return
	}

	if err := h.coll.Remove(ctx, id); err != nil {
		span.RecordError(err)
		h.logger.Error("failed to delete prescription", zap.String("id", id), zap.Error(err))
		writeError(w, err)
		return
	}

	if existed {
		h.metrics.Deleted()
		h.logger.Info("prescription deleted", zap.String("prescription_id", id))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles GET /prescriptions/{id}/preview
func (h *PrescriptionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	h.docs.preview(w, document.FromPrescription(p))
}

// PDF handles GET /prescriptions/{id}/pdf?engine=browser|primitive
func (h *PrescriptionHandler) PDF(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "export_prescription_pdf",
		trace.WithAttributes(
			attribute.String("prescription_id", p.ID),
			attribute.String("engine", r.URL.Query().Get("engine")),
		))
	defer span.End()

	h.docs.pdf(ctx, w, r, document.FromPrescription(p), "prescription-"+p.ID)
}

// PNG handles GET /prescriptions/{id}/png
func (h *PrescriptionHandler) PNG(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "export_prescription_png",
		trace.WithAttributes(attribute.String("prescription_id", p.ID)))
	defer span.End()

	h.docs.png(ctx, w, document.FromPrescription(p), "prescription-"+p.ID)
}

func (h *PrescriptionHandler) load(w http.ResponseWriter, r *http.Request) (prescription.Prescription, bool) {
	id := chi.URLParam(r, "id")
	p, err := h.coll.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, collection.ErrNotFound) {
			h.logger.Error("failed to load prescription", zap.String("id", id), zap.Error(err))
		}
		writeError(w, err)
		return prescription.Prescription{}, false
	}
	return p, true
}
