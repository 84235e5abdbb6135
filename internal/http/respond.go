package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
}

// writeError maps domain errors to status codes: validation failures are
// 422 with the offending field, missing rows are 404, everything else is
// a 500 with the detail kept out of the body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Error: verr.Message,
			Field: verr.Field,
		})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldMethod, r.Method,
			applog.FieldError, err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: msg})
}
