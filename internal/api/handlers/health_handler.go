package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/explainrag/server/internal/api/response"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports liveness and database readiness.
type HealthHandler struct {
	db *pgxpool.Pool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health handles GET /health. Degrades to 503 when the database is
// unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		response.RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "database unreachable")

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
