package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/catalog"
	"github.com/drfirst/go-rxpad/internal/profile"
)

// ProfileHandler reads and replaces the doctor's saved profile
type ProfileHandler struct {
	store  *profile.Store
	logger *zap.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(store *profile.Store, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{store: store, logger: logger}
}

// Routes returns the router for profile endpoints
func (h *ProfileHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Put)
	return r
}

// Get handles GET /profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to read profile", zap.Error(err))
		jsonError(w, "failed to read profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Put handles PUT /profile
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if err := decode(r, &p); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.Put(r.Context(), p); err != nil {
		h.logger.Error("failed to save profile", zap.Error(err))
		jsonError(w, "failed to save profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Catalog handles GET /catalog
func Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.All())
}
