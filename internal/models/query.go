package models

import (
	"time"

	"github.com/google/uuid"
)

// RetrievedChunk is a query-scoped view of a chunk with its scoring metadata.
// OriginalRank is the position assigned by the vector index; Rank is the final
// position after optional reranking. They are identical when reranking is
// disabled, and RerankScore is nil then.
type RetrievedChunk struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	PaperID         uuid.UUID `json:"paper_id"`
	PaperTitle      string    `json:"paper_title"`
	Content         string    `json:"content"`
	SimilarityScore float64   `json:"similarity_score"`
	RerankScore     *float64  `json:"rerank_score"`
	OriginalRank    int       `json:"original_rank"`
	Rank            int       `json:"rank"`
}

// Citation maps one inline marker [n] in the answer to its evidence chunks.
// Marker n (1-based) indexes this query's citation list.
type Citation struct {
	Claim      string      `json:"claim"`
	ChunkIDs   []uuid.UUID `json:"chunk_ids"`
	Confidence float64     `json:"confidence"`
}

// Verdict is the categorical support judgment for one claim.
type Verdict string

const (
	VerdictSupported   Verdict = "supported"
	VerdictUnsupported Verdict = "unsupported"
	VerdictPartial     Verdict = "partial"
)

// ParseVerdict maps a model-produced string to a Verdict; anything
// unrecognized is treated as unsupported.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictSupported, VerdictPartial:
		return Verdict(s)
	default:
		return VerdictUnsupported
	}
}

// ClaimVerification is the verifier's judgment of a single claim.
type ClaimVerification struct {
	Claim            string      `json:"claim"`
	Verdict          Verdict     `json:"verdict"`
	EvidenceChunkIDs []uuid.UUID `json:"evidence_chunk_ids"`
	Reasoning        string      `json:"reasoning"`
}

// FaithfulnessResult aggregates per-claim verdicts into a [0,1] score.
type FaithfulnessResult struct {
	Score  float64             `json:"score"`
	Claims []ClaimVerification `json:"claims"`
}

// ExplanationTrace is the per-stage timing breakdown of one pipeline run.
// RerankingTimeMs is nil when the stage was skipped. TotalTimeMs is the
// wall-clock span of the whole invocation, not the sum of stage timings.
type ExplanationTrace struct {
	EmbeddingTimeMs    float64  `json:"embedding_time_ms"`
	RetrievalTimeMs    float64  `json:"retrieval_time_ms"`
	RerankingTimeMs    *float64 `json:"reranking_time_ms"`
	GenerationTimeMs   float64  `json:"generation_time_ms"`
	FaithfulnessTimeMs float64  `json:"faithfulness_time_ms"`
	TotalTimeMs        float64  `json:"total_time_ms"`
}

// QueryRecord is the persisted result of one successful pipeline run.
// It is created once and never mutated; evaluation results are stored
// separately.
type QueryRecord struct {
	QueryID         uuid.UUID          `json:"query_id"`
	Question        string             `json:"question"`
	Answer          string             `json:"answer"`
	Citations       []Citation         `json:"citations"`
	RetrievedChunks []RetrievedChunk   `json:"retrieved_chunks"`
	Faithfulness    FaithfulnessResult `json:"faithfulness"`
	Trace           ExplanationTrace   `json:"trace"`
	CreatedAt       time.Time          `json:"created_at"`
}

// QuerySummary is a list-view projection of a stored query.
type QuerySummary struct {
	QueryID       uuid.UUID `json:"query_id"`
	Question      string    `json:"question"`
	AnswerPreview string    `json:"answer_preview"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvaluationResult holds on-demand quality metrics for a stored query.
// ContextRecall is meaningful only when HasGroundTruth is true.
type EvaluationResult struct {
	QueryID          uuid.UUID `json:"query_id"`
	Faithfulness     float64   `json:"faithfulness"`
	AnswerRelevancy  float64   `json:"answer_relevancy"`
	ContextPrecision float64   `json:"context_precision"`
	ContextRecall    float64   `json:"context_recall"`
	HasGroundTruth   bool      `json:"has_ground_truth"`
	EvaluationTimeMs float64   `json:"evaluation_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
