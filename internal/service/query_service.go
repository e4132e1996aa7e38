package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/explainrag/server/internal/embedding"
	"github.com/explainrag/server/internal/index"
	"github.com/explainrag/server/internal/llm"
	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
	"github.com/explainrag/server/internal/reranker"
)

const (
	maxTopK        = 50
	maxQuestionLen = 2000
)

// AnswerGenerator produces a cited answer over retrieved context.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, chunks []llm.ContextChunk) (llm.GenerationResult, error)
}

// FaithfulnessVerifier checks an answer's claims against retrieved context.
type FaithfulnessVerifier interface {
	Verify(ctx context.Context, answer string, chunks []llm.ContextChunk) (models.FaithfulnessResult, error)
}

// QueriesRepositoryForPipeline provides the persistence the pipeline needs.
type QueriesRepositoryForPipeline interface {
	Create(ctx context.Context, record *models.QueryRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error)
	List(ctx context.Context, limit, offset int) ([]models.QuerySummary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PapersRepositoryForPipeline validates paper-scope filters.
type PapersRepositoryForPipeline interface {
	Exists(ctx context.Context, ids []uuid.UUID) (bool, error)
}

// QueryService runs the full explainable pipeline: embed, retrieve,
// optionally rerank, generate, verify, and persist with a per-stage trace.
type QueryService struct {
	embeddingClient embedding.Client
	searcher        index.Searcher
	reranker        reranker.Client
	generator       AnswerGenerator
	verifier        FaithfulnessVerifier
	queriesRepo     QueriesRepositoryForPipeline
	papersRepo      PapersRepositoryForPipeline
	defaultTopK     int
	queryCache      *lru.Cache[string, []float32]
	queryLoadGroup  singleflight.Group
	embedLimiter    *rate.Limiter
	logger          *slog.Logger
}

// QueryServiceParams configures QueryService. Reranker may be nil (reranking
// unavailable), QueryCache may be nil (no caching), EmbedLimiter may be nil
// (no rate limit).
type QueryServiceParams struct {
	EmbeddingClient embedding.Client
	Searcher        index.Searcher
	Reranker        reranker.Client
	Generator       AnswerGenerator
	Verifier        FaithfulnessVerifier
	QueriesRepo     QueriesRepositoryForPipeline
	PapersRepo      PapersRepositoryForPipeline
	DefaultTopK     int
	QueryCache      *lru.Cache[string, []float32]
	EmbedLimiter    *rate.Limiter
	Logger          *slog.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(p QueryServiceParams) *QueryService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	topK := p.DefaultTopK
	if topK <= 0 {
		topK = 10
	}

	return &QueryService{
		embeddingClient: p.EmbeddingClient,
		searcher:        p.Searcher,
		reranker:        p.Reranker,
		generator:       p.Generator,
		verifier:        p.Verifier,
		queriesRepo:     p.QueriesRepo,
		papersRepo:      p.PapersRepo,
		defaultTopK:     topK,
		queryCache:      p.QueryCache,
		embedLimiter:    p.EmbedLimiter,
		logger:          logger,
	}
}

// QueryRequest is one pipeline invocation. TopK 0 selects the configured
// default; PaperIDs empty means the whole corpus; Rerank requests the
// optional cross-encoder stage.
type QueryRequest struct {
	Question string      `json:"question"`
	TopK     int         `json:"top_k"`
	PaperIDs []uuid.UUID `json:"paper_ids,omitempty"`
	Rerank   bool        `json:"enable_reranking"`
}

// Query runs the pipeline end to end and persists the completed record.
// Upstream failures abort the run and persist nothing.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*models.QueryRecord, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ragerrors.NewValidationError("question", "question is required and must be non-empty")
	}

	if len(question) > maxQuestionLen {
		return nil, ragerrors.NewValidationError("question",
			fmt.Sprintf("question exceeds %d characters", maxQuestionLen))
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}

	if topK < 1 || topK > maxTopK {
		return nil, ragerrors.NewValidationError("top_k",
			fmt.Sprintf("top_k must be between 1 and %d", maxTopK))
	}

	if len(req.PaperIDs) > 0 {
		ok, err := s.papersRepo.Exists(ctx, req.PaperIDs)
		if err != nil {
			return nil, fmt.Errorf("validate paper filter: %w", err)
		}

		if !ok {
			return nil, ragerrors.NewNotFoundError("paper", "one or more filtered papers do not exist")
		}
	}

	start := time.Now()
	trace := models.ExplanationTrace{}

	queryEmbedding, embedMs, err := timeStage(func() ([]float32, error) {
		return s.queryEmbedding(ctx, question)
	})
	if err != nil {
		s.logger.Error("query: embedding failed", "error", err)

		return nil, ragerrors.NewUpstreamError("embedding", err.Error())
	}

	trace.EmbeddingTimeMs = embedMs

	scored, retrieveMs, err := timeStage(func() ([]models.ScoredChunk, error) {
		return s.searcher.Search(ctx, queryEmbedding, topK, req.PaperIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	trace.RetrievalTimeMs = retrieveMs

	if len(scored) == 0 {
		return s.persistInsufficient(ctx, question, start, trace)
	}

	retrieved := toRetrievedChunks(scored)

	if req.Rerank && s.reranker != nil {
		reranked, rerankMs, rerankErr := timeStage(func() ([]models.RetrievedChunk, error) {
			return s.rerank(ctx, question, retrieved)
		})

		trace.RerankingTimeMs = &rerankMs

		if rerankErr != nil {
			// Reranking is best-effort: fall back to vector order.
			s.logger.Warn("query: rerank failed, using vector order", "error", rerankErr)
		} else {
			retrieved = reranked
		}
	}

	contextChunks := toContextChunks(retrieved)

	generated, generateMs, err := timeStage(func() (llm.GenerationResult, error) {
		return s.generator.Generate(ctx, question, contextChunks)
	})
	if err != nil {
		s.logger.Error("query: generation failed", "error", err)

		return nil, ragerrors.NewUpstreamError("generation", err.Error())
	}

	trace.GenerationTimeMs = generateMs

	faithfulness := models.FaithfulnessResult{Score: 0, Claims: []models.ClaimVerification{}}

	if !generated.Insufficient {
		verified, verifyMs, verifyErr := timeStage(func() (models.FaithfulnessResult, error) {
			return s.verifier.Verify(ctx, generated.Answer, contextChunks)
		})
		if verifyErr != nil {
			s.logger.Error("query: verification failed", "error", verifyErr)

			return nil, ragerrors.NewUpstreamError("verification", verifyErr.Error())
		}

		faithfulness = verified
		trace.FaithfulnessTimeMs = verifyMs
	}

	trace.TotalTimeMs = msSince(start)

	record := &models.QueryRecord{
		QueryID:         uuid.New(),
		Question:        question,
		Answer:          generated.Answer,
		Citations:       generated.Citations,
		RetrievedChunks: retrieved,
		Faithfulness:    faithfulness,
		Trace:           trace,
	}

	if err := s.queriesRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist query: %w", err)
	}

	s.logger.Info("query completed",
		"query_id", record.QueryID.String(),
		"chunks", len(retrieved),
		"claims", len(faithfulness.Claims),
		"faithfulness", faithfulness.Score,
		"total_ms", trace.TotalTimeMs,
	)

	return record, nil
}

// persistInsufficient stores the canned no-context answer so the attempt is
// auditable like any other query.
func (s *QueryService) persistInsufficient(
	ctx context.Context, question string, start time.Time, trace models.ExplanationTrace,
) (*models.QueryRecord, error) {
	trace.TotalTimeMs = msSince(start)

	record := &models.QueryRecord{
		QueryID:         uuid.New(),
		Question:        question,
		Answer:          llm.InsufficientContextAnswer,
		Citations:       []models.Citation{},
		RetrievedChunks: []models.RetrievedChunk{},
		Faithfulness:    models.FaithfulnessResult{Score: 0, Claims: []models.ClaimVerification{}},
		Trace:           trace,
	}

	if err := s.queriesRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist query: %w", err)
	}

	s.logger.Info("query completed with no retrieved context", "query_id", record.QueryID.String())

	return record, nil
}

// rerank scores the candidates with the cross-encoder and reorders them by
// descending rerank score, original rank as tie-break.
func (s *QueryService) rerank(ctx context.Context, question string, retrieved []models.RetrievedChunk) ([]models.RetrievedChunk, error) {
	docs := make([]reranker.Document, len(retrieved))
	for i, rc := range retrieved {
		docs[i] = reranker.Document{ID: rc.ChunkID, Content: rc.Content}
	}

	scores, err := s.reranker.Rerank(ctx, question, docs)
	if err != nil {
		return nil, err
	}

	out := make([]models.RetrievedChunk, len(retrieved))
	copy(out, retrieved)

	for i := range out {
		if score, ok := scores[out[i].ChunkID]; ok {
			v := score
			out[i].RerankScore = &v
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := rerankScore(out[i]), rerankScore(out[j])
		if si != sj {
			return si > sj
		}

		return out[i].OriginalRank < out[j].OriginalRank
	})

	for i := range out {
		out[i].Rank = i + 1
	}

	return out, nil
}

func rerankScore(rc models.RetrievedChunk) float64 {
	if rc.RerankScore != nil {
		return *rc.RerankScore
	}

	// Unscored chunks sink below every scored one.
	return -1e18
}

// GetQuery returns one stored query record.
func (s *QueryService) GetQuery(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error) {
	record, err := s.queriesRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}

	return record, nil
}

// ListQueries returns summaries, newest first.
func (s *QueryService) ListQueries(ctx context.Context, limit, offset int) ([]models.QuerySummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	if offset < 0 {
		offset = 0
	}

	summaries, err := s.queriesRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}

	return summaries, nil
}

// DeleteQuery removes a stored query.
func (s *QueryService) DeleteQuery(ctx context.Context, id uuid.UUID) error {
	if err := s.queriesRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete query: %w", err)
	}

	return nil
}

// queryEmbedding returns the cached embedding for the question, deduplicating
// concurrent misses and honoring the embed rate limit.
func (s *QueryService) queryEmbedding(ctx context.Context, question string) ([]float32, error) {
	if s.queryCache == nil {
		return s.createEmbedding(ctx, question)
	}

	if vec, ok := s.queryCache.Get(question); ok {
		return vec, nil
	}

	val, err, _ := s.queryLoadGroup.Do(question, func() (any, error) {
		vec, loadErr := s.createEmbedding(ctx, question)
		if loadErr != nil {
			return nil, loadErr
		}

		s.queryCache.Add(question, vec)

		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	return val.([]float32), nil
}

func (s *QueryService) createEmbedding(ctx context.Context, text string) ([]float32, error) {
	if s.embedLimiter != nil {
		if err := s.embedLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed rate limit: %w", err)
		}
	}

	vec, err := s.embeddingClient.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	return vec, nil
}

func toRetrievedChunks(scored []models.ScoredChunk) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, len(scored))

	for i, sc := range scored {
		out[i] = models.RetrievedChunk{
			ChunkID:         sc.ChunkID,
			PaperID:         sc.PaperID,
			PaperTitle:      sc.PaperTitle,
			Content:         sc.Content,
			SimilarityScore: sc.Similarity,
			OriginalRank:    i + 1,
			Rank:            i + 1,
		}
	}

	return out
}

func toContextChunks(retrieved []models.RetrievedChunk) []llm.ContextChunk {
	out := make([]llm.ContextChunk, len(retrieved))

	for i, rc := range retrieved {
		out[i] = llm.ContextChunk{
			ID:         rc.ChunkID,
			PaperTitle: rc.PaperTitle,
			Content:    rc.Content,
		}
	}

	return out
}
