// Package index provides vector similarity search over chunk embeddings.
// Two implementations exist behind one interface: a pgvector-backed index
// used in production and an in-memory index for small corpora and tests.
package index

import (
	"context"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/models"
)

// Searcher returns the topK most similar chunks to the query embedding,
// ordered by descending similarity with chunk ID as the deterministic
// tie-break. A non-empty paperIDs restricts the search to those papers.
// Fewer than topK results means the (filtered) corpus is smaller than topK.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, paperIDs []uuid.UUID) ([]models.ScoredChunk, error)
}
