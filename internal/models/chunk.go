package models

import (
	"time"

	"github.com/google/uuid"
)

// Paper represents one ingested paper. Chunks cascade-delete with it.
type Paper struct {
	ID         uuid.UUID `json:"id"`
	ArxivID    string    `json:"arxiv_id,omitempty"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is one embedded passage of a paper. The embedding is immutable once
// written and its dimensionality is fixed corpus-wide.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	PaperID    uuid.UUID `json:"paper_id"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	Section    *string   `json:"section,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ScoredChunk is a chunk returned by the vector index, annotated with the
// paper title and cosine similarity clipped to [0,1].
type ScoredChunk struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	PaperID    uuid.UUID `json:"paper_id"`
	PaperTitle string    `json:"paper_title"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
}

// PaperEmbedding is the centroid of a paper's chunk embeddings, used by the
// atlas recompute.
type PaperEmbedding struct {
	PaperID    uuid.UUID `json:"paper_id"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunk_count"`
	Embedding  []float32 `json:"embedding"`
}
