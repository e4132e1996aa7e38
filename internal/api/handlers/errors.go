// Package handlers contains the HTTP handlers for the API surface.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/explainrag/server/internal/api/response"
	"github.com/explainrag/server/internal/ragerrors"
)

// respondServiceError maps service-layer errors to HTTP status codes:
// validation 400, not found 404, exclusive-job conflict 409, upstream
// failure 502, everything else 500 without leaking internals.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ragerrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, ragerrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	case errors.Is(err, ragerrors.ErrConcurrency):
		response.RespondConflict(w, err.Error())
	case errors.Is(err, ragerrors.ErrUpstream):
		response.RespondBadGateway(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
	}
}
