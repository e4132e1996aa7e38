package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/api/response"
	"github.com/explainrag/server/internal/models"
)

// EvaluationService computes and serves query evaluations.
type EvaluationService interface {
	Evaluate(ctx context.Context, queryID uuid.UUID, groundTruth string) (*models.EvaluationResult, error)
	GetEvaluation(ctx context.Context, queryID uuid.UUID) (*models.EvaluationResult, error)
}

// EvaluationHandler handles HTTP requests for query evaluation.
type EvaluationHandler struct {
	service EvaluationService
}

// NewEvaluationHandler creates a new evaluation handler.
func NewEvaluationHandler(service EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: service}
}

// EvaluateRequest is the body for POST /v1/queries/{id}/evaluate.
type EvaluateRequest struct {
	GroundTruth string `json:"ground_truth,omitempty"`
}

// Evaluate handles POST /v1/queries/{id}/evaluate.
func (h *EvaluationHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid query ID")

		return
	}

	var req EvaluateRequest

	// Body is optional; an empty body means no ground truth.
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	result, err := h.service.Evaluate(r.Context(), id, req.GroundTruth)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/queries/{id}/evaluation.
func (h *EvaluationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid query ID")

		return
	}

	result, err := h.service.GetEvaluation(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
