package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/api/response"
	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/service"
)

// QueryService runs the pipeline and serves stored queries.
type QueryService interface {
	Query(ctx context.Context, req service.QueryRequest) (*models.QueryRecord, error)
	GetQuery(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error)
	ListQueries(ctx context.Context, limit, offset int) ([]models.QuerySummary, error)
	DeleteQuery(ctx context.Context, id uuid.UUID) error
}

// QueryHandler handles HTTP requests for the query pipeline.
type QueryHandler struct {
	service QueryService
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

// Query handles POST /v1/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req service.QueryRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	record, err := h.service.Query(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, record)
}

// Get handles GET /v1/queries/{id}.
func (h *QueryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid query ID")

		return
	}

	record, err := h.service.GetQuery(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, record)
}

// List handles GET /v1/queries.
func (h *QueryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 50)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)

	summaries, err := h.service.ListQueries(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"queries": summaries})
}

// Delete handles DELETE /v1/queries/{id}.
func (h *QueryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid query ID")

		return
	}

	if err := h.service.DeleteQuery(r.Context(), id); err != nil {
		respondServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseIntParam(raw string, def int) int {
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}

	return v
}
