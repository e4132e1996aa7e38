package index

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/models"
)

// Entry is one chunk loaded into the in-memory index.
type Entry struct {
	ChunkID    uuid.UUID
	PaperID    uuid.UUID
	PaperTitle string
	Content    string
	Embedding  []float32
}

// Memory is a brute-force cosine index over an immutable snapshot of entries.
// Replace swaps in a new snapshot atomically, so searches never observe a
// partially updated corpus.
type Memory struct {
	snapshot atomic.Pointer[[]Entry]
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	m := &Memory{}

	empty := make([]Entry, 0)
	m.snapshot.Store(&empty)

	return m
}

// Replace installs a new snapshot. The caller must not mutate entries after
// handing them over.
func (m *Memory) Replace(entries []Entry) {
	if entries == nil {
		entries = make([]Entry, 0)
	}

	m.snapshot.Store(&entries)
}

// Len reports the number of indexed chunks.
func (m *Memory) Len() int {
	return len(*m.snapshot.Load())
}

// Search implements Searcher with an exact scan over the current snapshot.
func (m *Memory) Search(_ context.Context, embedding []float32, topK int, paperIDs []uuid.UUID) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		return []models.ScoredChunk{}, nil
	}

	var filter map[uuid.UUID]struct{}

	if len(paperIDs) > 0 {
		filter = make(map[uuid.UUID]struct{}, len(paperIDs))

		for _, id := range paperIDs {
			filter[id] = struct{}{}
		}
	}

	entries := *m.snapshot.Load()

	scored := make([]models.ScoredChunk, 0, len(entries))

	for _, e := range entries {
		if filter != nil {
			if _, ok := filter[e.PaperID]; !ok {
				continue
			}
		}

		scored = append(scored, models.ScoredChunk{
			ChunkID:    e.ChunkID,
			PaperID:    e.PaperID,
			PaperTitle: e.PaperTitle,
			Content:    e.Content,
			Similarity: clampSimilarity(cosine(embedding, e.Embedding)),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}

		return scored[i].ChunkID.String() < scored[j].ChunkID.String()
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	return scored, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
