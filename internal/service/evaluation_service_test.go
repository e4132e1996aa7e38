package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explainrag/server/internal/llm"
	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

type mockJudge struct {
	relevancyFunc func(ctx context.Context, question, answer string, n int) (float64, error)
	precisionFunc func(ctx context.Context, question, answer string, contexts []string) (float64, error)
	recallFunc    func(ctx context.Context, groundTruth string, contexts []string) (float64, error)
}

func (m *mockJudge) AnswerRelevancy(ctx context.Context, question, answer string, n int) (float64, error) {
	if m.relevancyFunc != nil {
		return m.relevancyFunc(ctx, question, answer, n)
	}

	return 0.8, nil
}

func (m *mockJudge) ContextPrecision(ctx context.Context, question, answer string, contexts []string) (float64, error) {
	if m.precisionFunc != nil {
		return m.precisionFunc(ctx, question, answer, contexts)
	}

	return 0.7, nil
}

func (m *mockJudge) ContextRecall(ctx context.Context, groundTruth string, contexts []string) (float64, error) {
	if m.recallFunc != nil {
		return m.recallFunc(ctx, groundTruth, contexts)
	}

	return 0.6, nil
}

type mockQueriesRepoForEvaluation struct {
	getFunc     func(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error)
	saved       *models.EvaluationResult
	getEvalFunc func(ctx context.Context, queryID uuid.UUID) (*models.EvaluationResult, error)
}

func (m *mockQueriesRepoForEvaluation) GetByID(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}

	return nil, ragerrors.NewNotFoundError("query", "query not found")
}

func (m *mockQueriesRepoForEvaluation) SaveEvaluation(_ context.Context, result *models.EvaluationResult) error {
	m.saved = result

	return nil
}

func (m *mockQueriesRepoForEvaluation) GetEvaluation(ctx context.Context, queryID uuid.UUID) (*models.EvaluationResult, error) {
	if m.getEvalFunc != nil {
		return m.getEvalFunc(ctx, queryID)
	}

	return nil, ragerrors.NewNotFoundError("evaluation", "evaluation not found")
}

func storedRecord(id uuid.UUID) *models.QueryRecord {
	return &models.QueryRecord{
		QueryID:  id,
		Question: "what is attention?",
		Answer:   "Attention weighs tokens [1].",
		RetrievedChunks: []models.RetrievedChunk{
			{ChunkID: uuid.New(), Content: "attention weighs token importance"},
			{ChunkID: uuid.New(), Content: "unrelated convolution text"},
		},
		Faithfulness: models.FaithfulnessResult{Score: 0.37},
	}
}

func newTestEvaluationService(p EvaluationServiceParams) *EvaluationService {
	if p.QueriesRepo == nil {
		p.QueriesRepo = &mockQueriesRepoForEvaluation{}
	}

	if p.Judge == nil {
		p.Judge = &mockJudge{}
	}

	if p.Verifier == nil {
		p.Verifier = &mockVerifier{}
	}

	return NewEvaluationService(p)
}

func TestEvaluationService_Evaluate(t *testing.T) {
	t.Run("unknown query is not found", func(t *testing.T) {
		svc := newTestEvaluationService(EvaluationServiceParams{})

		_, err := svc.Evaluate(context.Background(), uuid.New(), "")
		assert.ErrorIs(t, err, ragerrors.ErrNotFound)
	})

	t.Run("faithfulness is re-verified, not copied from the record", func(t *testing.T) {
		id := uuid.New()
		record := storedRecord(id)

		var verifiedAnswer string

		var verifiedChunks int

		svc := newTestEvaluationService(EvaluationServiceParams{
			QueriesRepo: &mockQueriesRepoForEvaluation{
				getFunc: func(_ context.Context, _ uuid.UUID) (*models.QueryRecord, error) {
					return record, nil
				},
			},
			Verifier: &mockVerifier{
				verifyFunc: func(_ context.Context, answer string, chunks []llm.ContextChunk) (models.FaithfulnessResult, error) {
					verifiedAnswer = answer
					verifiedChunks = len(chunks)

					return models.FaithfulnessResult{Score: 0.9}, nil
				},
			},
		})

		result, err := svc.Evaluate(context.Background(), id, "")
		require.NoError(t, err)

		assert.Equal(t, record.Answer, verifiedAnswer)
		assert.Equal(t, 2, verifiedChunks)
		assert.InDelta(t, 0.9, result.Faithfulness, 1e-9)
		assert.NotEqual(t, record.Faithfulness.Score, result.Faithfulness)
	})

	t.Run("without ground truth skips recall", func(t *testing.T) {
		id := uuid.New()

		recallCalled := false
		repo := &mockQueriesRepoForEvaluation{
			getFunc: func(_ context.Context, _ uuid.UUID) (*models.QueryRecord, error) {
				return storedRecord(id), nil
			},
		}

		svc := newTestEvaluationService(EvaluationServiceParams{
			QueriesRepo: repo,
			Judge: &mockJudge{
				recallFunc: func(_ context.Context, _ string, _ []string) (float64, error) {
					recallCalled = true

					return 1, nil
				},
			},
		})

		result, err := svc.Evaluate(context.Background(), id, "")
		require.NoError(t, err)

		assert.False(t, recallCalled)
		assert.False(t, result.HasGroundTruth)
		assert.InDelta(t, 0.0, result.ContextRecall, 1e-9)
		assert.InDelta(t, 1.0, result.Faithfulness, 1e-9)
		assert.InDelta(t, 0.8, result.AnswerRelevancy, 1e-9)
		assert.InDelta(t, 0.7, result.ContextPrecision, 1e-9)
		require.NotNil(t, repo.saved)
	})

	t.Run("with ground truth computes recall", func(t *testing.T) {
		id := uuid.New()

		svc := newTestEvaluationService(EvaluationServiceParams{
			QueriesRepo: &mockQueriesRepoForEvaluation{
				getFunc: func(_ context.Context, _ uuid.UUID) (*models.QueryRecord, error) {
					return storedRecord(id), nil
				},
			},
			Judge: &mockJudge{
				recallFunc: func(_ context.Context, groundTruth string, contexts []string) (float64, error) {
					assert.Equal(t, "attention computes weighted sums", groundTruth)
					assert.Len(t, contexts, 2)

					return 0.5, nil
				},
			},
		})

		result, err := svc.Evaluate(context.Background(), id, "attention computes weighted sums")
		require.NoError(t, err)
		assert.True(t, result.HasGroundTruth)
		assert.InDelta(t, 0.5, result.ContextRecall, 1e-9)
	})

	t.Run("verifier failure maps to upstream error", func(t *testing.T) {
		id := uuid.New()

		svc := newTestEvaluationService(EvaluationServiceParams{
			QueriesRepo: &mockQueriesRepoForEvaluation{
				getFunc: func(_ context.Context, _ uuid.UUID) (*models.QueryRecord, error) {
					return storedRecord(id), nil
				},
			},
			Verifier: &mockVerifier{
				verifyFunc: func(_ context.Context, _ string, _ []llm.ContextChunk) (models.FaithfulnessResult, error) {
					return models.FaithfulnessResult{}, errors.New("model down")
				},
			},
		})

		_, err := svc.Evaluate(context.Background(), id, "")
		assert.ErrorIs(t, err, ragerrors.ErrUpstream)
	})

	t.Run("judge failure maps to upstream error", func(t *testing.T) {
		id := uuid.New()

		svc := newTestEvaluationService(EvaluationServiceParams{
			QueriesRepo: &mockQueriesRepoForEvaluation{
				getFunc: func(_ context.Context, _ uuid.UUID) (*models.QueryRecord, error) {
					return storedRecord(id), nil
				},
			},
			Judge: &mockJudge{
				relevancyFunc: func(_ context.Context, _, _ string, _ int) (float64, error) {
					return 0, ragerrors.NewUpstreamError("evaluation", "model down")
				},
			},
		})

		_, err := svc.Evaluate(context.Background(), id, "")
		assert.ErrorIs(t, err, ragerrors.ErrUpstream)
	})
}
