package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/api/response"
	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/service"
)

// IngestionService manages the paper corpus.
type IngestionService interface {
	IngestPaper(ctx context.Context, req service.IngestPaperRequest) (*models.Paper, error)
	GetPaper(ctx context.Context, id uuid.UUID) (*models.Paper, error)
	ListPapers(ctx context.Context) ([]models.Paper, error)
	DeletePaper(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (service.CorpusStats, error)
}

// PapersHandler handles HTTP requests for paper ingestion and the corpus.
type PapersHandler struct {
	service IngestionService
}

// NewPapersHandler creates a new papers handler.
func NewPapersHandler(service IngestionService) *PapersHandler {
	return &PapersHandler{service: service}
}

// Ingest handles POST /v1/papers.
func (h *PapersHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestPaperRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	paper, err := h.service.IngestPaper(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, paper)
}

// Get handles GET /v1/papers/{id}.
func (h *PapersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid paper ID")

		return
	}

	paper, err := h.service.GetPaper(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, paper)
}

// List handles GET /v1/papers.
func (h *PapersHandler) List(w http.ResponseWriter, r *http.Request) {
	papers, err := h.service.ListPapers(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"papers": papers})
}

// Delete handles DELETE /v1/papers/{id}.
func (h *PapersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid paper ID")

		return
	}

	if err := h.service.DeletePaper(r.Context(), id); err != nil {
		respondServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /v1/stats.
func (h *PapersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, stats)
}
