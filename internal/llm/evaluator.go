package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/explainrag/server/internal/embedding"
)

const questionGenSystemPrompt = `Given an answer, generate questions that this answer would directly respond to.
Return a JSON array of strings with exactly the requested number of questions.
Return only the JSON array, nothing else.`

const usefulnessSystemPrompt = `You judge whether a context passage was useful for producing an answer to a question.
For each passage, answer true if the passage contains information used in the answer, false otherwise.
Return a JSON array of booleans, one per passage, in order.
Return only the JSON array, nothing else.`

const recallSystemPrompt = `You judge whether each statement from a ground-truth answer can be attributed to the given context passages.
Return a JSON array of booleans, one per statement, in order: true if the context supports the statement.
Return only the JSON array, nothing else.`

// Evaluator implements the LLM-judged parts of the evaluation metrics:
// answer relevancy (reverse-question similarity), context precision, and
// context recall.
type Evaluator struct {
	chat     ChatClient
	embedder embedding.Client
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(chat ChatClient, embedder embedding.Client) *Evaluator {
	return &Evaluator{chat: chat, embedder: embedder}
}

// AnswerRelevancy generates n questions the answer would respond to, embeds
// them, and returns the mean cosine similarity against the original question.
func (e *Evaluator) AnswerRelevancy(ctx context.Context, question, answer string, n int) (float64, error) {
	if n <= 0 {
		n = 3
	}

	user := fmt.Sprintf("Generate %d questions.\n\nAnswer:\n%s", n, answer)

	out, err := e.chat.Complete(ctx, questionGenSystemPrompt, user)
	if err != nil {
		return 0, fmt.Errorf("generate questions: %w", err)
	}

	var questions []string
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &questions); err != nil || len(questions) == 0 {
		return 0, fmt.Errorf("generate questions: unparseable response")
	}

	qEmb, err := e.embedder.CreateEmbedding(ctx, question)
	if err != nil {
		return 0, fmt.Errorf("embed question: %w", err)
	}

	var total float64

	for _, gen := range questions {
		genEmb, err := e.embedder.CreateEmbedding(ctx, gen)
		if err != nil {
			return 0, fmt.Errorf("embed generated question: %w", err)
		}

		total += cosineSimilarity(qEmb, genEmb)
	}

	score := total / float64(len(questions))
	if score < 0 {
		score = 0
	}

	return score, nil
}

// ContextPrecision judges each retrieved passage as useful or not and returns
// the mean average precision over the ranked list.
func (e *Evaluator) ContextPrecision(ctx context.Context, question, answer string, contexts []string) (float64, error) {
	if len(contexts) == 0 {
		return 0, nil
	}

	useful, err := e.judgeBooleans(ctx, usefulnessSystemPrompt, formatJudgePrompt(question, answer, "", contexts), len(contexts))
	if err != nil {
		return 0, fmt.Errorf("judge context usefulness: %w", err)
	}

	var (
		hits      int
		precision float64
	)

	for i, ok := range useful {
		if ok {
			hits++
			precision += float64(hits) / float64(i+1)
		}
	}

	if hits == 0 {
		return 0, nil
	}

	return precision / float64(hits), nil
}

// ContextRecall splits the ground truth into statements and returns the
// fraction attributable to the retrieved context.
func (e *Evaluator) ContextRecall(ctx context.Context, groundTruth string, contexts []string) (float64, error) {
	statements := splitSentences(groundTruth)
	if len(statements) == 0 {
		return 0, nil
	}

	var sb strings.Builder

	sb.WriteString("Context passages:\n")

	for i, c := range contexts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, c)
	}

	sb.WriteString("\nStatements:\n")

	for i, s := range statements {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}

	attributed, err := e.judgeBooleans(ctx, recallSystemPrompt, sb.String(), len(statements))
	if err != nil {
		return 0, fmt.Errorf("judge context recall: %w", err)
	}

	var hits int

	for _, ok := range attributed {
		if ok {
			hits++
		}
	}

	return float64(hits) / float64(len(statements)), nil
}

// judgeBooleans runs one judging call and normalizes the response to exactly
// want booleans, padding missing entries with false.
func (e *Evaluator) judgeBooleans(ctx context.Context, system, user string, want int) ([]bool, error) {
	out, err := e.chat.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var verdicts []bool
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &verdicts); err != nil {
		return nil, fmt.Errorf("unparseable judge response")
	}

	if len(verdicts) > want {
		verdicts = verdicts[:want]
	}

	for len(verdicts) < want {
		verdicts = append(verdicts, false)
	}

	return verdicts, nil
}

func formatJudgePrompt(question, answer, groundTruth string, contexts []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Question: %s\n", question)

	if answer != "" {
		fmt.Fprintf(&sb, "Answer: %s\n", answer)
	}

	if groundTruth != "" {
		fmt.Fprintf(&sb, "Ground truth: %s\n", groundTruth)
	}

	sb.WriteString("\nPassages:\n")

	for i, c := range contexts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, c)
	}

	return sb.String()
}

func cosineSimilarity(a, b []float32) float64 {
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
