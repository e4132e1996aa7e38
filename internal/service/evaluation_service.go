package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

// QualityJudge implements the LLM-judged evaluation metrics.
type QualityJudge interface {
	AnswerRelevancy(ctx context.Context, question, answer string, n int) (float64, error)
	ContextPrecision(ctx context.Context, question, answer string, contexts []string) (float64, error)
	ContextRecall(ctx context.Context, groundTruth string, contexts []string) (float64, error)
}

// QueriesRepositoryForEvaluation loads stored queries and persists results.
type QueriesRepositoryForEvaluation interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error)
	SaveEvaluation(ctx context.Context, result *models.EvaluationResult) error
	GetEvaluation(ctx context.Context, queryID uuid.UUID) (*models.EvaluationResult, error)
}

// EvaluationService computes on-demand quality metrics for stored queries.
// Every metric is recomputed fresh, including faithfulness: the verifier
// re-scores the stored answer against the stored contexts rather than
// trusting the score the pipeline wrote at query time.
type EvaluationService struct {
	queriesRepo QueriesRepositoryForEvaluation
	judge       QualityJudge
	verifier    FaithfulnessVerifier
	logger      *slog.Logger
}

// EvaluationServiceParams configures EvaluationService.
type EvaluationServiceParams struct {
	QueriesRepo QueriesRepositoryForEvaluation
	Judge       QualityJudge
	Verifier    FaithfulnessVerifier
	Logger      *slog.Logger
}

// NewEvaluationService creates an EvaluationService.
func NewEvaluationService(p EvaluationServiceParams) *EvaluationService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EvaluationService{
		queriesRepo: p.QueriesRepo,
		judge:       p.Judge,
		verifier:    p.Verifier,
		logger:      logger,
	}
}

// Evaluate computes metrics for a stored query. groundTruth is optional;
// context recall is only meaningful with it. Results are persisted and
// re-evaluation replaces the previous result.
func (s *EvaluationService) Evaluate(ctx context.Context, queryID uuid.UUID, groundTruth string) (*models.EvaluationResult, error) {
	record, err := s.queriesRepo.GetByID(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("load query: %w", err)
	}

	contexts := make([]string, len(record.RetrievedChunks))
	for i, rc := range record.RetrievedChunks {
		contexts[i] = rc.Content
	}

	start := time.Now()

	verified, err := s.verifier.Verify(ctx, record.Answer, toContextChunks(record.RetrievedChunks))
	if err != nil {
		s.logger.Error("evaluation: faithfulness verification failed", "query_id", queryID.String(), "error", err)

		return nil, ragerrors.NewUpstreamError("evaluation", err.Error())
	}

	relevancy, err := s.judge.AnswerRelevancy(ctx, record.Question, record.Answer, 3)
	if err != nil {
		s.logger.Error("evaluation: answer relevancy failed", "query_id", queryID.String(), "error", err)

		return nil, ragerrors.NewUpstreamError("evaluation", err.Error())
	}

	precision := 0.0

	if len(contexts) > 0 {
		precision, err = s.judge.ContextPrecision(ctx, record.Question, record.Answer, contexts)
		if err != nil {
			s.logger.Error("evaluation: context precision failed", "query_id", queryID.String(), "error", err)

			return nil, ragerrors.NewUpstreamError("evaluation", err.Error())
		}
	}

	groundTruth = strings.TrimSpace(groundTruth)
	hasGroundTruth := groundTruth != ""
	recall := 0.0

	if hasGroundTruth && len(contexts) > 0 {
		recall, err = s.judge.ContextRecall(ctx, groundTruth, contexts)
		if err != nil {
			s.logger.Error("evaluation: context recall failed", "query_id", queryID.String(), "error", err)

			return nil, ragerrors.NewUpstreamError("evaluation", err.Error())
		}
	}

	result := &models.EvaluationResult{
		QueryID:          queryID,
		Faithfulness:     verified.Score,
		AnswerRelevancy:  relevancy,
		ContextPrecision: precision,
		ContextRecall:    recall,
		HasGroundTruth:   hasGroundTruth,
		EvaluationTimeMs: msSince(start),
	}

	if err := s.queriesRepo.SaveEvaluation(ctx, result); err != nil {
		return nil, fmt.Errorf("persist evaluation: %w", err)
	}

	s.logger.Info("query evaluated",
		"query_id", queryID.String(),
		"faithfulness", result.Faithfulness,
		"answer_relevancy", result.AnswerRelevancy,
		"context_precision", result.ContextPrecision,
		"has_ground_truth", hasGroundTruth,
	)

	return result, nil
}

// GetEvaluation returns the stored evaluation for a query.
func (s *EvaluationService) GetEvaluation(ctx context.Context, queryID uuid.UUID) (*models.EvaluationResult, error) {
	result, err := s.queriesRepo.GetEvaluation(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}

	return result, nil
}
