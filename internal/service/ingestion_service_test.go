package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

type mockPapersRepoForIngestion struct {
	createFunc func(ctx context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error)
	getFunc    func(ctx context.Context, id uuid.UUID) (*models.Paper, error)
	listFunc   func(ctx context.Context) ([]models.Paper, error)
	deleteFunc func(ctx context.Context, id uuid.UUID) error
	statsFunc  func(ctx context.Context) (int64, int64, error)
}

func (m *mockPapersRepoForIngestion) CreateWithChunks(ctx context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, paper, chunks)
	}

	paper.ChunkCount = len(chunks)

	return paper, nil
}

func (m *mockPapersRepoForIngestion) GetByID(ctx context.Context, id uuid.UUID) (*models.Paper, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}

	return nil, ragerrors.NewNotFoundError("paper", "paper not found")
}

func (m *mockPapersRepoForIngestion) List(ctx context.Context) ([]models.Paper, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}

	return nil, nil
}

func (m *mockPapersRepoForIngestion) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}

	return nil
}

func (m *mockPapersRepoForIngestion) Stats(ctx context.Context) (int64, int64, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}

	return 0, 0, nil
}

func TestIngestionService_IngestPaper(t *testing.T) {
	t.Run("missing title is a validation error", func(t *testing.T) {
		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo:      &mockPapersRepoForIngestion{},
			EmbeddingClient: &mockEmbeddingClient{},
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title:  "  ",
			Chunks: []IngestChunk{{Content: "text"}},
		})
		assert.ErrorIs(t, err, ragerrors.ErrValidation)
	})

	t.Run("no chunks is a validation error", func(t *testing.T) {
		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo:      &mockPapersRepoForIngestion{},
			EmbeddingClient: &mockEmbeddingClient{},
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{Title: "T"})
		assert.ErrorIs(t, err, ragerrors.ErrValidation)
	})

	t.Run("empty chunk content is a validation error", func(t *testing.T) {
		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo:      &mockPapersRepoForIngestion{},
			EmbeddingClient: &mockEmbeddingClient{},
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title:  "T",
			Chunks: []IngestChunk{{Content: "ok"}, {Content: "   "}},
		})
		assert.ErrorIs(t, err, ragerrors.ErrValidation)
	})

	t.Run("chunks embedded with sequential indexes", func(t *testing.T) {
		var persistedChunks []models.Chunk

		embedded := 0

		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo: &mockPapersRepoForIngestion{
				createFunc: func(_ context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error) {
					persistedChunks = chunks
					paper.ChunkCount = len(chunks)

					return paper, nil
				},
			},
			EmbeddingClient: &mockEmbeddingClient{
				createFunc: func(_ context.Context, _ string) ([]float32, error) {
					embedded++

					return []float32{0.1, 0.2}, nil
				},
			},
		})

		paper, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title:  "Attention Is All You Need",
			Chunks: []IngestChunk{{Content: "intro"}, {Content: "method"}, {Content: "results"}},
		})
		require.NoError(t, err)

		assert.Equal(t, 3, embedded)
		assert.Equal(t, 3, paper.ChunkCount)
		require.Len(t, persistedChunks, 3)

		for i, chunk := range persistedChunks {
			assert.Equal(t, i, chunk.ChunkIndex)
			assert.NotEqual(t, uuid.Nil, chunk.ID)
			assert.Equal(t, []float32{0.1, 0.2}, chunk.Embedding)
		}
	})

	t.Run("null bytes are stripped from all text fields", func(t *testing.T) {
		var persistedPaper *models.Paper

		var persistedChunks []models.Chunk

		section := "meth\x00ods"

		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo: &mockPapersRepoForIngestion{
				createFunc: func(_ context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error) {
					persistedPaper = paper
					persistedChunks = chunks

					return paper, nil
				},
			},
			EmbeddingClient: &mockEmbeddingClient{},
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title:    "Atten\x00tion Is All You Need",
			Abstract: "abstract\x00 text",
			Authors:  []string{"A. Vas\x00wani"},
			Chunks:   []IngestChunk{{Content: "self\x00-attention", Section: &section}},
		})
		require.NoError(t, err)

		assert.Equal(t, "Attention Is All You Need", persistedPaper.Title)
		assert.Equal(t, "abstract text", persistedPaper.Abstract)
		assert.Equal(t, []string{"A. Vaswani"}, persistedPaper.Authors)
		require.Len(t, persistedChunks, 1)
		assert.Equal(t, "self-attention", persistedChunks[0].Content)
		require.NotNil(t, persistedChunks[0].Section)
		assert.Equal(t, "methods", *persistedChunks[0].Section)
	})

	t.Run("chunks with supplied embeddings skip the embedder", func(t *testing.T) {
		var persistedChunks []models.Chunk

		embedded := 0

		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo: &mockPapersRepoForIngestion{
				createFunc: func(_ context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error) {
					persistedChunks = chunks

					return paper, nil
				},
			},
			EmbeddingClient: &mockEmbeddingClient{
				createFunc: func(_ context.Context, _ string) ([]float32, error) {
					embedded++

					return []float32{0.1, 0.2}, nil
				},
			},
			EmbeddingDims: 2,
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title: "T",
			Chunks: []IngestChunk{
				{Content: "precomputed", Embedding: []float32{0.5, 0.6}},
				{Content: "needs embedding"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 1, embedded)
		require.Len(t, persistedChunks, 2)
		assert.Equal(t, []float32{0.5, 0.6}, persistedChunks[0].Embedding)
		assert.Equal(t, []float32{0.1, 0.2}, persistedChunks[1].Embedding)
	})

	t.Run("supplied embedding with wrong dimensions is a validation error", func(t *testing.T) {
		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo:      &mockPapersRepoForIngestion{},
			EmbeddingClient: &mockEmbeddingClient{},
			EmbeddingDims:   2,
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title:  "T",
			Chunks: []IngestChunk{{Content: "text", Embedding: []float32{0.1, 0.2, 0.3}}},
		})
		assert.ErrorIs(t, err, ragerrors.ErrValidation)
	})

	t.Run("embedding failure aborts ingest", func(t *testing.T) {
		created := false

		svc := NewIngestionService(IngestionServiceParams{
			PapersRepo: &mockPapersRepoForIngestion{
				createFunc: func(_ context.Context, paper *models.Paper, _ []models.Chunk) (*models.Paper, error) {
					created = true

					return paper, nil
				},
			},
			EmbeddingClient: &mockEmbeddingClient{
				createFunc: func(_ context.Context, _ string) ([]float32, error) {
					return nil, errors.New("rate limited")
				},
			},
		})

		_, err := svc.IngestPaper(context.Background(), IngestPaperRequest{
			Title:  "T",
			Chunks: []IngestChunk{{Content: "text"}},
		})
		assert.ErrorIs(t, err, ragerrors.ErrUpstream)
		assert.False(t, created)
	})
}

func TestIngestionService_Stats(t *testing.T) {
	svc := NewIngestionService(IngestionServiceParams{
		PapersRepo: &mockPapersRepoForIngestion{
			statsFunc: func(_ context.Context) (int64, int64, error) {
				return 12, 340, nil
			},
		},
		EmbeddingClient: &mockEmbeddingClient{},
	})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.PaperCount)
	assert.Equal(t, int64(340), stats.ChunkCount)
}
