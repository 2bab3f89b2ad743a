// Package handlers implements the rxpad HTTP API and the pdf-server endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/drfirst/go-rxpad/internal/collection"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/export"
	"github.com/drfirst/go-rxpad/internal/wizard"
)

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Error      string                   `json:"error"`
	Message    string                   `json:"message,omitempty"`
	Cause      export.Cause             `json:"cause,omitempty"`
	Violations []prescription.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{Error: message})
}

// writeError maps domain errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	var verr *prescription.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:      "validation failed",
			Violations: verr.Violations,
		})
	case errors.Is(err, collection.ErrNotFound):
		jsonError(w, "prescription not found", http.StatusNotFound)
	case errors.Is(err, wizard.ErrFinalized):
		jsonError(w, "prescription already finalized, restart to begin a new one", http.StatusConflict)
	default:
		if rf, ok := export.AsRenderFailure(err); ok {
			writeJSON(w, renderStatus(rf.Cause), ErrorResponse{
				Error:   "render failed",
				Message: rf.Message,
				Cause:   rf.Cause,
			})
			return
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func renderStatus(c export.Cause) int {
	switch c {
	case export.CauseUnavailable:
		return http.StatusServiceUnavailable
	case export.CauseTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func indexParam(r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
