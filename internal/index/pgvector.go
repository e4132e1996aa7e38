package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/explainrag/server/internal/models"
)

// PgVector runs cosine similarity search against the chunks table using the
// pgvector <=> operator, served by the HNSW index.
type PgVector struct {
	pool *pgxpool.Pool
}

// NewPgVector creates a pgvector-backed searcher over the given pool.
func NewPgVector(pool *pgxpool.Pool) *PgVector {
	return &PgVector{pool: pool}
}

// Search implements Searcher. Ties on distance break on chunk ID so repeated
// queries return a stable order.
func (p *PgVector) Search(ctx context.Context, embedding []float32, topK int, paperIDs []uuid.UUID) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		return []models.ScoredChunk{}, nil
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT c.id, c.paper_id, p.title, c.content,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN papers p ON p.id = c.paper_id
		WHERE $3::uuid[] IS NULL OR c.paper_id = ANY($3)
		ORDER BY c.embedding <=> $1, c.id
		LIMIT $2`

	var filter any
	if len(paperIDs) > 0 {
		filter = paperIDs
	}

	rows, err := p.pool.Query(ctx, query, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredChunk, 0, topK)

	for rows.Next() {
		var sc models.ScoredChunk

		if err := rows.Scan(&sc.ChunkID, &sc.PaperID, &sc.PaperTitle, &sc.Content, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}

		sc.Similarity = clampSimilarity(sc.Similarity)
		results = append(results, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}

	return results, nil
}

func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}

	if s > 1 {
		return 1
	}

	return s
}
