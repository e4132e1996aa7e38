package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/explainrag/server/internal/embedding"
	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

const (
	maxChunksPerPaper = 500
	maxChunkChars     = 8000
)

// PapersRepositoryForIngestion provides the persistence ingestion needs.
type PapersRepositoryForIngestion interface {
	CreateWithChunks(ctx context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Paper, error)
	List(ctx context.Context) ([]models.Paper, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (int64, int64, error)
}

// IngestionService embeds incoming paper chunks and persists paper and
// chunks atomically.
type IngestionService struct {
	papersRepo      PapersRepositoryForIngestion
	embeddingClient embedding.Client
	embedLimiter    *rate.Limiter
	embeddingDims   int
	logger          *slog.Logger
}

// IngestionServiceParams configures IngestionService. EmbedLimiter may be
// nil (no rate limit); EmbeddingDims 0 disables dimension validation of
// caller-supplied vectors.
type IngestionServiceParams struct {
	PapersRepo      PapersRepositoryForIngestion
	EmbeddingClient embedding.Client
	EmbedLimiter    *rate.Limiter
	EmbeddingDims   int
	Logger          *slog.Logger
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(p IngestionServiceParams) *IngestionService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestionService{
		papersRepo:      p.PapersRepo,
		embeddingClient: p.EmbeddingClient,
		embedLimiter:    p.EmbedLimiter,
		embeddingDims:   p.EmbeddingDims,
		logger:          logger,
	}
}

// IngestChunk is one pre-split passage of an incoming paper. Embedding is
// optional; chunks arriving without a vector are embedded here.
type IngestChunk struct {
	Content   string    `json:"content"`
	Section   *string   `json:"section,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// IngestPaperRequest is the payload for paper ingestion. Chunks arrive
// pre-split; the service embeds them.
type IngestPaperRequest struct {
	ArxivID  string        `json:"arxiv_id,omitempty"`
	Title    string        `json:"title"`
	Authors  []string      `json:"authors,omitempty"`
	Abstract string        `json:"abstract,omitempty"`
	Chunks   []IngestChunk `json:"chunks"`
}

// IngestPaper embeds every chunk and stores the paper with its chunks in one
// transaction. Any embedding failure aborts the whole ingest.
func (s *IngestionService) IngestPaper(ctx context.Context, req IngestPaperRequest) (*models.Paper, error) {
	title := strings.TrimSpace(sanitizeText(req.Title))
	if title == "" {
		return nil, ragerrors.NewValidationError("title", "title is required")
	}

	if len(req.Chunks) == 0 {
		return nil, ragerrors.NewValidationError("chunks", "at least one chunk is required")
	}

	if len(req.Chunks) > maxChunksPerPaper {
		return nil, ragerrors.NewValidationError("chunks",
			fmt.Sprintf("at most %d chunks per paper", maxChunksPerPaper))
	}

	chunks := make([]models.Chunk, 0, len(req.Chunks))

	for i, in := range req.Chunks {
		content := strings.TrimSpace(sanitizeText(in.Content))
		if content == "" {
			return nil, ragerrors.NewValidationError("chunks",
				fmt.Sprintf("chunk %d has empty content", i))
		}

		if len(content) > maxChunkChars {
			return nil, ragerrors.NewValidationError("chunks",
				fmt.Sprintf("chunk %d exceeds %d characters", i, maxChunkChars))
		}

		vec := in.Embedding

		if len(vec) == 0 {
			embedded, err := s.embedChunk(ctx, content)
			if err != nil {
				s.logger.Error("ingest: embedding failed", "chunk_index", i, "error", err)

				return nil, ragerrors.NewUpstreamError("embedding", err.Error())
			}

			vec = embedded
		} else if s.embeddingDims > 0 && len(vec) != s.embeddingDims {
			return nil, ragerrors.NewValidationError("chunks",
				fmt.Sprintf("chunk %d embedding must have %d dimensions, got %d", i, s.embeddingDims, len(vec)))
		}

		var section *string
		if in.Section != nil {
			cleaned := strings.TrimSpace(sanitizeText(*in.Section))
			section = &cleaned
		}

		chunks = append(chunks, models.Chunk{
			ID:         uuid.New(),
			Content:    content,
			ChunkIndex: i,
			Section:    section,
			Embedding:  vec,
		})
	}

	authors := make([]string, len(req.Authors))
	for i, a := range req.Authors {
		authors[i] = sanitizeText(a)
	}

	paper := &models.Paper{
		ID:       uuid.New(),
		ArxivID:  strings.TrimSpace(sanitizeText(req.ArxivID)),
		Title:    title,
		Authors:  authors,
		Abstract: sanitizeText(req.Abstract),
	}

	created, err := s.papersRepo.CreateWithChunks(ctx, paper, chunks)
	if err != nil {
		return nil, fmt.Errorf("persist paper: %w", err)
	}

	s.logger.Info("paper ingested",
		"paper_id", created.ID.String(),
		"title", created.Title,
		"chunks", created.ChunkCount,
	)

	return created, nil
}

// GetPaper returns one paper with its chunk count.
func (s *IngestionService) GetPaper(ctx context.Context, id uuid.UUID) (*models.Paper, error) {
	paper, err := s.papersRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	return paper, nil
}

// ListPapers returns all papers, newest first.
func (s *IngestionService) ListPapers(ctx context.Context) ([]models.Paper, error) {
	papers, err := s.papersRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}

	return papers, nil
}

// DeletePaper removes a paper and its chunks.
func (s *IngestionService) DeletePaper(ctx context.Context, id uuid.UUID) error {
	if err := s.papersRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete paper: %w", err)
	}

	s.logger.Info("paper deleted", "paper_id", id.String())

	return nil
}

// CorpusStats reports corpus-wide counts.
type CorpusStats struct {
	PaperCount int64 `json:"paper_count"`
	ChunkCount int64 `json:"chunk_count"`
}

// Stats returns corpus-wide counts.
func (s *IngestionService) Stats(ctx context.Context) (CorpusStats, error) {
	papers, chunks, err := s.papersRepo.Stats(ctx)
	if err != nil {
		return CorpusStats{}, fmt.Errorf("corpus stats: %w", err)
	}

	return CorpusStats{PaperCount: papers, ChunkCount: chunks}, nil
}

// sanitizeText strips NUL bytes, which Postgres text columns reject.
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func (s *IngestionService) embedChunk(ctx context.Context, content string) ([]float32, error) {
	if s.embedLimiter != nil {
		if err := s.embedLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed rate limit: %w", err)
		}
	}

	return s.embeddingClient.CreateEmbedding(ctx, content)
}
