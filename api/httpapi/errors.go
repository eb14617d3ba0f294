package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"agriscore/core"
	"agriscore/engine"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{
		Code:      code,
		Message:   msg,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeServiceError maps engine and core errors onto the error envelope.
func (a *api) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *core.InvalidActivityTypeError
	switch {
	case errors.As(err, &invalid):
		var details any
		if invalid.Suggestion != "" {
			details = map[string]string{"suggestion": string(invalid.Suggestion)}
		}
		writeError(w, r, http.StatusBadRequest, "invalid_activity_type", err.Error(), details)
	case errors.Is(err, core.ErrInvalidActivityType):
		writeError(w, r, http.StatusBadRequest, "invalid_activity_type", err.Error(), nil)
	case errors.Is(err, core.ErrEmptyUserID):
		writeError(w, r, http.StatusBadRequest, "invalid_user", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidPeriod):
		writeError(w, r, http.StatusBadRequest, "invalid_period", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidLimit):
		writeError(w, r, http.StatusBadRequest, "invalid_limit", err.Error(), nil)
	case errors.Is(err, engine.ErrPersistence):
		a.logger.Error("storage unavailable", "error", err, "request_id", middleware.GetReqID(r.Context()))
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "persistence_unavailable", "score storage unavailable, retry later", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	default:
		a.logger.Error("request failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
