package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

// AtlasRepository persists the atlas snapshot. Exactly one snapshot exists;
// each recompute replaces it in a single transaction so readers never see a
// half-written atlas.
type AtlasRepository struct {
	db *pgxpool.Pool
}

// NewAtlasRepository creates a new atlas repository.
func NewAtlasRepository(db *pgxpool.Pool) *AtlasRepository {
	return &AtlasRepository{db: db}
}

// Replace deletes the previous snapshot and stores the new one.
func (r *AtlasRepository) Replace(ctx context.Context, snapshot *models.AtlasSnapshot) error {
	points, err := json.Marshal(snapshot.Points)
	if err != nil {
		return fmt.Errorf("failed to marshal atlas points: %w", err)
	}

	clusters, err := json.Marshal(snapshot.Clusters)
	if err != nil {
		return fmt.Errorf("failed to marshal atlas clusters: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin atlas transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM atlas_snapshots`); err != nil {
		return fmt.Errorf("failed to clear atlas snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO atlas_snapshots (points, clusters, computed_at)
		VALUES ($1, $2, $3)`,
		points, clusters, snapshot.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store atlas snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit atlas transaction: %w", err)
	}

	return nil
}

// Get retrieves the current snapshot. NotFoundError means no recompute has
// run yet.
func (r *AtlasRepository) Get(ctx context.Context) (*models.AtlasSnapshot, error) {
	query := `
		SELECT points, clusters, computed_at
		FROM atlas_snapshots
		ORDER BY computed_at DESC
		LIMIT 1`

	var (
		snapshot models.AtlasSnapshot
		points   []byte
		clusters []byte
	)

	err := r.db.QueryRow(ctx, query).Scan(&points, &clusters, &snapshot.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ragerrors.NewNotFoundError("atlas", "atlas has not been computed yet")
		}

		return nil, fmt.Errorf("failed to get atlas snapshot: %w", err)
	}

	if err := json.Unmarshal(points, &snapshot.Points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal atlas points: %w", err)
	}

	if err := json.Unmarshal(clusters, &snapshot.Clusters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal atlas clusters: %w", err)
	}

	return &snapshot, nil
}
