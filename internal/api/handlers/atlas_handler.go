package handlers

import (
	"context"
	"net/http"

	"github.com/explainrag/server/internal/api/response"
	"github.com/explainrag/server/internal/models"
)

// AtlasService computes and serves the corpus atlas.
type AtlasService interface {
	Recompute(ctx context.Context) (*models.AtlasRecomputeStats, error)
	Get(ctx context.Context) (*models.AtlasSnapshot, error)
}

// AtlasHandler handles HTTP requests for the embedding atlas.
type AtlasHandler struct {
	service AtlasService
}

// NewAtlasHandler creates a new atlas handler.
func NewAtlasHandler(service AtlasService) *AtlasHandler {
	return &AtlasHandler{service: service}
}

// Recompute handles POST /v1/atlas/recompute.
func (h *AtlasHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Recompute(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, stats)
}

// Get handles GET /v1/atlas.
func (h *AtlasHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, snapshot)
}

// Points handles GET /v1/atlas/points.
func (h *AtlasHandler) Points(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{
		"points":      snapshot.Points,
		"computed_at": snapshot.ComputedAt,
	})
}

// Clusters handles GET /v1/atlas/clusters.
func (h *AtlasHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{
		"clusters":    snapshot.Clusters,
		"computed_at": snapshot.ComputedAt,
	})
}
