package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explainrag/server/internal/models"
)

func TestFaithfulnessScore(t *testing.T) {
	t.Run("empty claims score 1.0", func(t *testing.T) {
		assert.InDelta(t, 1.0, FaithfulnessScore(nil), 1e-9)
	})

	t.Run("verdicts are weighted", func(t *testing.T) {
		claims := []models.ClaimVerification{
			{Verdict: models.VerdictSupported},
			{Verdict: models.VerdictPartial},
			{Verdict: models.VerdictUnsupported},
		}

		assert.InDelta(t, 0.5, FaithfulnessScore(claims), 1e-9)
	})
}

func TestVerifier_Verify(t *testing.T) {
	chunks := testChunks(2)

	t.Run("claims verified against context", func(t *testing.T) {
		verifier := NewVerifier(&mockChatClient{
			completeFunc: func(_ context.Context, system, _ string) (string, error) {
				if strings.Contains(system, "decompose") {
					return `["Transformers use attention.", "They were introduced in 2017."]`, nil
				}

				return `[
					{"claim_index": 0, "verdict": "supported", "evidence_chunk_indices": [1], "reasoning": "stated directly"},
					{"claim_index": 1, "verdict": "unsupported", "evidence_chunk_indices": [], "reasoning": "not in context"}
				]`, nil
			},
		})

		result, err := verifier.Verify(context.Background(), "Transformers use attention. They were introduced in 2017.", chunks)
		require.NoError(t, err)

		assert.InDelta(t, 0.5, result.Score, 1e-9)
		require.Len(t, result.Claims, 2)
		assert.Equal(t, models.VerdictSupported, result.Claims[0].Verdict)
		assert.Equal(t, []uuid.UUID{chunks[0].ID}, result.Claims[0].EvidenceChunkIDs)
		assert.Equal(t, models.VerdictUnsupported, result.Claims[1].Verdict)
	})

	t.Run("markdown fences stripped from responses", func(t *testing.T) {
		verifier := NewVerifier(&mockChatClient{
			completeFunc: func(_ context.Context, system, _ string) (string, error) {
				if strings.Contains(system, "decompose") {
					return "```json\n[\"One claim.\"]\n```", nil
				}

				return "```json\n[{\"claim_index\": 0, \"verdict\": \"supported\", \"evidence_chunk_indices\": [2], \"reasoning\": \"ok\"}]\n```", nil
			},
		})

		result, err := verifier.Verify(context.Background(), "One claim.", chunks)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, result.Score, 1e-9)
		require.Len(t, result.Claims, 1)
		assert.Equal(t, []uuid.UUID{chunks[1].ID}, result.Claims[0].EvidenceChunkIDs)
	})

	t.Run("unparseable decomposition falls back to sentences", func(t *testing.T) {
		verifier := NewVerifier(&mockChatClient{
			completeFunc: func(_ context.Context, system, _ string) (string, error) {
				if strings.Contains(system, "decompose") {
					return "not json at all", nil
				}

				return `[{"claim_index": 0, "verdict": "supported", "evidence_chunk_indices": [1], "reasoning": "ok"}]`, nil
			},
		})

		result, err := verifier.Verify(context.Background(), "The model achieves state of the art results.", chunks)
		require.NoError(t, err)
		require.Len(t, result.Claims, 1)
		assert.Equal(t, "The model achieves state of the art results.", result.Claims[0].Claim)
	})

	t.Run("unparseable verification marks all unsupported", func(t *testing.T) {
		verifier := NewVerifier(&mockChatClient{
			completeFunc: func(_ context.Context, system, _ string) (string, error) {
				if strings.Contains(system, "decompose") {
					return `["Claim A.", "Claim B."]`, nil
				}

				return "the model refused to answer", nil
			},
		})

		result, err := verifier.Verify(context.Background(), "Claim A. Claim B.", chunks)
		require.NoError(t, err)

		assert.InDelta(t, 0.0, result.Score, 1e-9)
		require.Len(t, result.Claims, 2)

		for _, claim := range result.Claims {
			assert.Equal(t, models.VerdictUnsupported, claim.Verdict)
		}
	})

	t.Run("empty answer scores 1.0 with no claims", func(t *testing.T) {
		verifier := NewVerifier(&mockChatClient{})

		result, err := verifier.Verify(context.Background(), "", chunks)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, result.Score, 1e-9)
		assert.Empty(t, result.Claims)
	})

	t.Run("out of range evidence indices dropped", func(t *testing.T) {
		verifier := NewVerifier(&mockChatClient{
			completeFunc: func(_ context.Context, system, _ string) (string, error) {
				if strings.Contains(system, "decompose") {
					return `["Claim A."]`, nil
				}

				return `[{"claim_index": 0, "verdict": "partial", "evidence_chunk_indices": [0, 1, 99], "reasoning": "mixed"}]`, nil
			},
		})

		result, err := verifier.Verify(context.Background(), "Claim A.", chunks)
		require.NoError(t, err)
		require.Len(t, result.Claims, 1)
		assert.Equal(t, []uuid.UUID{chunks[0].ID}, result.Claims[0].EvidenceChunkIDs)
		assert.InDelta(t, 0.5, result.Score, 1e-9)
	})
}

func TestParseVerdict(t *testing.T) {
	assert.Equal(t, models.VerdictSupported, models.ParseVerdict("supported"))
	assert.Equal(t, models.VerdictPartial, models.ParseVerdict("partial"))
	assert.Equal(t, models.VerdictUnsupported, models.ParseVerdict("unsupported"))
	assert.Equal(t, models.VerdictUnsupported, models.ParseVerdict("something else"))
}
