package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/offerstack/fulfillment/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses. Anything unmapped is a
// server-side failure and is logged rather than leaked to the caller.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		notFound     *domain.NotFoundError
		conflict     *domain.ConflictError
		validation   *domain.ValidationError
		illegal      *domain.IllegalTransitionError
		notPermitted *domain.NotPermittedError
		capacity     *domain.CapacityError
	)

	status := http.StatusInternalServerError
	message := "internal server error"
	switch {
	case errors.As(err, &notFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.As(err, &conflict):
		status, message = http.StatusConflict, err.Error()
	case errors.As(err, &validation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &illegal):
		status, message = http.StatusConflict, err.Error()
	case errors.As(err, &notPermitted):
		status, message = http.StatusForbidden, err.Error()
	case errors.As(err, &capacity):
		status, message = http.StatusServiceUnavailable, err.Error()
	default:
		logger.Error("request failed", "error", err)
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
