package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/draft"
	"github.com/drfirst/go-rxpad/internal/wizard"
)

// DraftHandler exposes the wizard and its draft over HTTP. Every mutating
// endpoint responds with the resulting wizard state.
type DraftHandler struct {
	wiz    *wizard.Controller
	docs   documents
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(wiz *wizard.Controller, logger *zap.Logger) *DraftHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftHandler{
		wiz:    wiz,
		docs:   documents{logger: logger},
		now:    time.Now,
		logger: logger,
		tracer: otel.Tracer("draft-handler"),
	}
}

// Routes returns the router for draft endpoints
func (h *DraftHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.State)
	r.Put("/", h.Save)
	r.Patch("/doctor", h.UpdateDoctor)
	r.Patch("/patient", h.UpdatePatient)
	r.Patch("/content", h.UpdateContent)

	r.Post("/medications", h.AddMedication)
	r.Patch("/medications/{index}", h.UpdateMedication)
	r.Delete("/medications/{index}", h.RemoveMedication)

	r.Post("/custom-fields", h.AddCustomField)
	r.Patch("/custom-fields/{index}", h.UpdateCustomField)
	r.Delete("/custom-fields/{index}", h.RemoveCustomField)

	r.Post("/next", h.Next)
	r.Post("/back", h.Back)
	r.Post("/finalize", h.Finalize)
	r.Post("/restart", h.Restart)
	r.Get("/preview", h.Preview)

	return r
}

// State handles GET /draft
func (h *DraftHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.wiz.State())
}

// Save handles PUT /draft
func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.wiz.SaveDraft(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wiz.State())
}

// edit runs one draft mutation and writes the resulting state
func (h *DraftHandler) edit(w http.ResponseWriter, fn func(s *draft.Store) prescription.Draft) {
	if _, err := h.wiz.Edit(fn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wiz.State())
}

// UpdateDoctor handles PATCH /draft/doctor
func (h *DraftHandler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	var patch prescription.DoctorDetailsPatch
	if err := decode(r, &patch); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.UpdateDoctorDetails(ctx, patch) })
}

// UpdatePatient handles PATCH /draft/patient
func (h *DraftHandler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var patch prescription.PatientDetailsPatch
	if err := decode(r, &patch); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.UpdatePatientDetails(ctx, patch) })
}

// UpdateContent handles PATCH /draft/content
func (h *DraftHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	var patch prescription.ContentPatch
	if err := decode(r, &patch); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.UpdateContent(ctx, patch) })
}

// AddMedication handles POST /draft/medications
func (h *DraftHandler) AddMedication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.AddMedication(ctx) })
}

// UpdateMedication handles PATCH /draft/medications/{index}
func (h *DraftHandler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	i, ok := indexParam(r)
	if !ok {
		jsonError(w, "invalid medication index", http.StatusBadRequest)
		return
	}
	var patch prescription.MedicationPatch
	if err := decode(r, &patch); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.UpdateMedication(ctx, i, patch) })
}

// RemoveMedication handles DELETE /draft/medications/{index}
func (h *DraftHandler) RemoveMedication(w http.ResponseWriter, r *http.Request) {
	i, ok := indexParam(r)
	if !ok {
		jsonError(w, "invalid medication index", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.RemoveMedication(ctx, i) })
}

// AddCustomField handles POST /draft/custom-fields
func (h *DraftHandler) AddCustomField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.AddCustomField(ctx) })
}

// UpdateCustomField handles PATCH /draft/custom-fields/{index}
func (h *DraftHandler) UpdateCustomField(w http.ResponseWriter, r *http.Request) {
	i, ok := indexParam(r)
	if !ok {
		jsonError(w, "invalid custom field index", http.StatusBadRequest)
		return
	}
	var patch prescription.CustomFieldPatch
	if err := decode(r, &patch); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.UpdateCustomField(ctx, i, patch) })
}

// RemoveCustomField handles DELETE /draft/custom-fields/{index}
func (h *DraftHandler) RemoveCustomField(w http.ResponseWriter, r *http.Request) {
	i, ok := indexParam(r)
	if !ok {
		jsonError(w, "invalid custom field index", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h.edit(w, func(s *draft.Store) prescription.Draft { return s.RemoveCustomField(ctx, i) })
}

// Next handles POST /draft/next
func (h *DraftHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, "next", h.wiz.GoNext)
}

// Back handles POST /draft/back
func (h *DraftHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, "back", h.wiz.GoBack)
}

func (h *DraftHandler) navigate(w http.ResponseWriter, r *http.Request, name string, move func(context.Context) (wizard.Step, error)) {
	ctx, span := h.tracer.Start(r.Context(), "wizard_"+name)
	defer span.End()

	step, err := move(ctx)
	span.SetAttributes(attribute.Int("step", int(step)))
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wiz.State())
}

// Finalize handles POST /draft/finalize
func (h *DraftHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "finalize_prescription")
	defer span.End()

	p, err := h.wiz.Finalize(ctx)
	if err != nil {
		span.RecordError(err)
		var verr *prescription.ValidationError
		if !errors.As(err, &verr) && !errors.Is(err, wizard.ErrFinalized) {
			h.logger.Error("failed to finalize prescription", zap.Error(err))
		}
		writeError(w, err)
		return
	}

	span.SetAttributes(attribute.String("prescription_id", p.ID))
	w.Header().Set("Location", "/api/v1/prescriptions/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

// Restart handles POST /draft/restart
func (h *DraftHandler) Restart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.wiz.Restart(r.Context()))
}

// Preview handles GET /draft/preview. An unfinalized draft is watermarked
// SAMPLE; once finalized the page shows the issued prescription.
func (h *DraftHandler) Preview(w http.ResponseWriter, r *http.Request) {
	s := h.wiz.State()
	if s.Result != nil {
		h.docs.preview(w, document.FromPrescription(*s.Result))
		return
	}
	doc := document.Build(s.Draft, h.now())
	doc.Watermark = document.SampleWatermark
	h.docs.preview(w, doc)
}
