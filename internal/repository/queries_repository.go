package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

// QueriesRepository persists completed query records and their evaluations.
// Records are write-once; the structured parts live in JSONB columns.
type QueriesRepository struct {
	db *pgxpool.Pool
}

// NewQueriesRepository creates a new queries repository.
func NewQueriesRepository(db *pgxpool.Pool) *QueriesRepository {
	return &QueriesRepository{db: db}
}

// Create stores one completed pipeline run.
func (r *QueriesRepository) Create(ctx context.Context, record *models.QueryRecord) error {
	citations, err := json.Marshal(record.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	chunks, err := json.Marshal(record.RetrievedChunks)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieved chunks: %w", err)
	}

	faithfulness, err := json.Marshal(record.Faithfulness)
	if err != nil {
		return fmt.Errorf("failed to marshal faithfulness: %w", err)
	}

	trace, err := json.Marshal(record.Trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	query := `
		INSERT INTO queries (id, question, answer, citations, retrieved_chunks, faithfulness, trace)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query,
		record.QueryID, record.Question, record.Answer,
		citations, chunks, faithfulness, trace,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create query record: %w", err)
	}

	return nil
}

// GetByID retrieves one stored query record.
func (r *QueriesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.QueryRecord, error) {
	query := `
		SELECT id, question, answer, citations, retrieved_chunks, faithfulness, trace, created_at
		FROM queries
		WHERE id = $1`

	var (
		record       models.QueryRecord
		citations    []byte
		chunks       []byte
		faithfulness []byte
		trace        []byte
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&record.QueryID, &record.Question, &record.Answer,
		&citations, &chunks, &faithfulness, &trace, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ragerrors.NewNotFoundError("query", "query not found")
		}

		return nil, fmt.Errorf("failed to get query record: %w", err)
	}

	if err := json.Unmarshal(citations, &record.Citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}

	if err := json.Unmarshal(chunks, &record.RetrievedChunks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retrieved chunks: %w", err)
	}

	if err := json.Unmarshal(faithfulness, &record.Faithfulness); err != nil {
		return nil, fmt.Errorf("failed to unmarshal faithfulness: %w", err)
	}

	if err := json.Unmarshal(trace, &record.Trace); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace: %w", err)
	}

	return &record, nil
}

// List returns query summaries newest first, with limit/offset paging.
func (r *QueriesRepository) List(ctx context.Context, limit, offset int) ([]models.QuerySummary, error) {
	query := `
		SELECT id, question, LEFT(answer, 200), created_at
		FROM queries
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	summaries := []models.QuerySummary{}

	for rows.Next() {
		var s models.QuerySummary

		if err := rows.Scan(&s.QueryID, &s.Question, &s.AnswerPreview, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query summary: %w", err)
		}

		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queries: %w", err)
	}

	return summaries, nil
}

// Delete removes a stored query and its evaluation.
func (r *QueriesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ragerrors.NewNotFoundError("query", "query not found")
	}

	return nil
}

// SaveEvaluation upserts the evaluation result for a query. Re-running an
// evaluation replaces the previous result.
func (r *QueriesRepository) SaveEvaluation(ctx context.Context, result *models.EvaluationResult) error {
	query := `
		INSERT INTO query_evaluations (
			query_id, faithfulness, answer_relevancy, context_precision,
			context_recall, has_ground_truth, evaluation_time_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query_id) DO UPDATE SET
			faithfulness = EXCLUDED.faithfulness,
			answer_relevancy = EXCLUDED.answer_relevancy,
			context_precision = EXCLUDED.context_precision,
			context_recall = EXCLUDED.context_recall,
			has_ground_truth = EXCLUDED.has_ground_truth,
			evaluation_time_ms = EXCLUDED.evaluation_time_ms,
			created_at = now()
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		result.QueryID, result.Faithfulness, result.AnswerRelevancy,
		result.ContextPrecision, result.ContextRecall,
		result.HasGroundTruth, result.EvaluationTimeMs,
	).Scan(&result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}

	return nil
}

// GetEvaluation retrieves the stored evaluation for a query.
func (r *QueriesRepository) GetEvaluation(ctx context.Context, queryID uuid.UUID) (*models.EvaluationResult, error) {
	query := `
		SELECT query_id, faithfulness, answer_relevancy, context_precision,
		       context_recall, has_ground_truth, evaluation_time_ms, created_at
		FROM query_evaluations
		WHERE query_id = $1`

	var result models.EvaluationResult

	err := r.db.QueryRow(ctx, query, queryID).Scan(
		&result.QueryID, &result.Faithfulness, &result.AnswerRelevancy,
		&result.ContextPrecision, &result.ContextRecall,
		&result.HasGroundTruth, &result.EvaluationTimeMs, &result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ragerrors.NewNotFoundError("evaluation", "evaluation not found")
		}

		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	return &result, nil
}
