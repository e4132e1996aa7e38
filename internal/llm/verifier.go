package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/models"
)

const decomposeSystemPrompt = `You decompose an answer into its atomic factual claims.
Return a JSON array of strings, one per claim. Each claim must be a single,
self-contained factual statement from the answer. Ignore citation markers like [1].
Return only the JSON array, nothing else.`

const verifySystemPrompt = `You verify whether claims are supported by context chunks.
For each claim, decide:
- "supported": the context fully entails the claim.
- "partial": the context entails part of the claim.
- "unsupported": the context does not entail the claim.

Return a JSON array with one object per claim, in the same order:
[{"claim_index": 0, "verdict": "supported", "evidence_chunk_indices": [1], "reasoning": "..."}]
evidence_chunk_indices are the 1-based chunk numbers shown in the context.
Return only the JSON array, nothing else.`

// Verifier decomposes an answer into claims and checks each one against the
// retrieved context.
type Verifier struct {
	chat ChatClient
}

// NewVerifier creates a Verifier.
func NewVerifier(chat ChatClient) *Verifier {
	return &Verifier{chat: chat}
}

// Verify runs decompose then verify and returns the per-claim verdicts with
// the aggregate faithfulness score. An answer yielding zero claims scores 1.0.
func (v *Verifier) Verify(ctx context.Context, answer string, chunks []ContextChunk) (models.FaithfulnessResult, error) {
	claims, err := v.decompose(ctx, answer)
	if err != nil {
		return models.FaithfulnessResult{}, fmt.Errorf("decompose claims: %w", err)
	}

	if len(claims) == 0 {
		return models.FaithfulnessResult{Score: 1.0, Claims: []models.ClaimVerification{}}, nil
	}

	verifications, err := v.verifyClaims(ctx, claims, chunks)
	if err != nil {
		return models.FaithfulnessResult{}, fmt.Errorf("verify claims: %w", err)
	}

	return models.FaithfulnessResult{
		Score:  FaithfulnessScore(verifications),
		Claims: verifications,
	}, nil
}

// FaithfulnessScore averages verdicts: supported 1.0, partially_supported 0.5,
// unsupported 0.0. Empty input scores 1.0.
func FaithfulnessScore(claims []models.ClaimVerification) float64 {
	if len(claims) == 0 {
		return 1.0
	}

	var total float64

	for _, c := range claims {
		switch c.Verdict {
		case models.VerdictSupported:
			total += 1.0
		case models.VerdictPartial:
			total += 0.5
		}
	}

	return total / float64(len(claims))
}

// decompose extracts atomic claims from the answer. On a malformed model
// response it falls back to sentence splitting.
func (v *Verifier) decompose(ctx context.Context, answer string) ([]string, error) {
	stripped := strings.TrimSpace(citationMarkerRe.ReplaceAllString(answer, ""))
	if stripped == "" {
		return nil, nil
	}

	out, err := v.chat.Complete(ctx, decomposeSystemPrompt, "Answer:\n"+stripped)
	if err != nil {
		return nil, err
	}

	var claims []string
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &claims); err != nil {
		return fallbackClaims(stripped), nil
	}

	cleaned := claims[:0]

	for _, c := range claims {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}

	return cleaned, nil
}

type verifyResponseItem struct {
	ClaimIndex           int    `json:"claim_index"`
	Verdict              string `json:"verdict"`
	EvidenceChunkIndices []int  `json:"evidence_chunk_indices"`
	Reasoning            string `json:"reasoning"`
}

// verifyClaims checks every claim in one batched call. A malformed response
// marks all claims unsupported rather than failing the query.
func (v *Verifier) verifyClaims(ctx context.Context, claims []string, chunks []ContextChunk) ([]models.ClaimVerification, error) {
	var sb strings.Builder

	sb.WriteString("Context:\n")

	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "Chunk [%d]:\n%s\n\n", i+1, chunk.Content)
	}

	sb.WriteString("Claims:\n")

	for i, claim := range claims {
		fmt.Fprintf(&sb, "%d. %s\n", i, claim)
	}

	out, err := v.chat.Complete(ctx, verifySystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var items []verifyResponseItem
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &items); err != nil {
		return allUnsupported(claims, "verification response could not be parsed"), nil
	}

	verdicts := allUnsupported(claims, "claim not addressed in verification response")

	for _, item := range items {
		if item.ClaimIndex < 0 || item.ClaimIndex >= len(claims) {
			continue
		}

		evidence := make([]uuid.UUID, 0, len(item.EvidenceChunkIndices))

		for _, idx := range item.EvidenceChunkIndices {
			if idx >= 1 && idx <= len(chunks) {
				evidence = append(evidence, chunks[idx-1].ID)
			}
		}

		verdicts[item.ClaimIndex] = models.ClaimVerification{
			Claim:            claims[item.ClaimIndex],
			Verdict:          models.ParseVerdict(item.Verdict),
			EvidenceChunkIDs: evidence,
			Reasoning:        strings.TrimSpace(item.Reasoning),
		}
	}

	return verdicts, nil
}

func allUnsupported(claims []string, reason string) []models.ClaimVerification {
	out := make([]models.ClaimVerification, len(claims))

	for i, claim := range claims {
		out[i] = models.ClaimVerification{
			Claim:     claim,
			Verdict:   models.VerdictUnsupported,
			Reasoning: reason,
		}
	}

	return out
}

func fallbackClaims(answer string) []string {
	sentences := splitSentences(answer)

	out := make([]string, 0, len(sentences))

	for _, s := range sentences {
		if len(strings.Fields(s)) >= 3 {
			out = append(out, s)
		}
	}

	return out
}

// stripJSONFences removes a surrounding markdown code fence if present.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	return strings.TrimSpace(s)
}
