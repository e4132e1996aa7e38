package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/models"
)

// InsufficientContextAnswer is the canned answer produced when the retrieved
// context does not cover the question. The query pipeline also persists it
// verbatim when retrieval returns nothing.
const InsufficientContextAnswer = "I cannot answer this question based on the available context."

const generationSystemPrompt = `You are a research assistant answering questions about academic papers.
Answer the question using ONLY the provided context chunks.

Rules:
- Every factual statement in your answer must cite its source chunk using the marker [n], where n is the chunk number shown in the context.
- Place citation markers immediately after the statement they support.
- If the context does not contain enough information to answer, reply exactly: "` + InsufficientContextAnswer + `"
- Do not use outside knowledge. Do not fabricate citations.`

// ContextChunk is one retrieved chunk presented to the model, in final rank order.
type ContextChunk struct {
	ID         uuid.UUID
	PaperTitle string
	Content    string
}

// GenerationResult is the answer with its normalized citation list. When
// Insufficient is true the answer is the canned refusal and Citations is empty.
type GenerationResult struct {
	Answer       string
	Citations    []models.Citation
	Insufficient bool
}

// Generator produces cited answers over retrieved context.
type Generator struct {
	chat       ChatClient
	charBudget int
}

// NewGenerator creates a Generator. charBudget caps the total characters of
// chunk content placed in the prompt; at least one chunk is always included.
func NewGenerator(chat ChatClient, charBudget int) *Generator {
	if charBudget <= 0 {
		charBudget = 24000
	}

	return &Generator{chat: chat, charBudget: charBudget}
}

// Generate answers the question from the given chunks. Markers in the answer
// are renumbered to a contiguous 1..k sequence in order of first appearance,
// out-of-range markers are stripped, and one Citation is built per surviving
// marker so that marker [n] always indexes Citations[n-1].
func (g *Generator) Generate(ctx context.Context, question string, chunks []ContextChunk) (GenerationResult, error) {
	included, prompt := g.buildContext(chunks)

	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", prompt, question)

	answer, err := g.chat.Complete(ctx, generationSystemPrompt, user)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("generate answer: %w", err)
	}

	answer = strings.TrimSpace(answer)

	if isInsufficientAnswer(answer) {
		return GenerationResult{
			Answer:       InsufficientContextAnswer,
			Citations:    []models.Citation{},
			Insufficient: true,
		}, nil
	}

	normalized, citations := normalizeCitations(answer, included)

	return GenerationResult{Answer: normalized, Citations: citations}, nil
}

// buildContext formats chunks into numbered blocks, stopping once the
// character budget is spent. Returns the chunks actually included.
func (g *Generator) buildContext(chunks []ContextChunk) ([]ContextChunk, string) {
	var (
		sb       strings.Builder
		included []ContextChunk
		used     int
	)

	for _, chunk := range chunks {
		if len(included) > 0 && used+len(chunk.Content) > g.charBudget {
			break
		}

		fmt.Fprintf(&sb, "Chunk [%d] (Paper: %s):\n%s\n\n", len(included)+1, chunk.PaperTitle, chunk.Content)
		included = append(included, chunk)
		used += len(chunk.Content)
	}

	return included, sb.String()
}

func isInsufficientAnswer(answer string) bool {
	lower := strings.ToLower(answer)

	return strings.Contains(lower, "cannot answer") && strings.Contains(lower, "context")
}

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// normalizeCitations rewrites markers to a contiguous sequence and builds the
// citation list. A marker is valid when it references an included chunk;
// invalid markers are removed from the text.
func normalizeCitations(answer string, included []ContextChunk) (string, []models.Citation) {
	renumber := make(map[int]int)
	order := make([]int, 0, len(included))

	for _, match := range citationMarkerRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(included) {
			continue
		}

		if _, seen := renumber[n]; !seen {
			renumber[n] = len(order) + 1
			order = append(order, n)
		}
	}

	rewritten := citationMarkerRe.ReplaceAllStringFunc(answer, func(marker string) string {
		n, _ := strconv.Atoi(marker[1 : len(marker)-1])

		newN, ok := renumber[n]
		if !ok {
			return ""
		}

		return "[" + strconv.Itoa(newN) + "]"
	})

	rewritten = collapseSpaces(rewritten)

	sentences := splitSentences(answer)

	citations := make([]models.Citation, 0, len(order))

	for _, orig := range order {
		citations = append(citations, models.Citation{
			Claim:      claimForMarker(sentences, orig),
			ChunkIDs:   []uuid.UUID{included[orig-1].ID},
			Confidence: 0.9,
		})
	}

	return rewritten, citations
}

// claimForMarker returns the first sentence carrying the given original
// marker, with all markers stripped.
func claimForMarker(sentences []string, marker int) string {
	needle := "[" + strconv.Itoa(marker) + "]"

	for _, s := range sentences {
		if strings.Contains(s, needle) {
			return collapseSpaces(citationMarkerRe.ReplaceAllString(s, ""))
		}
	}

	if len(sentences) > 0 {
		return collapseSpaces(citationMarkerRe.ReplaceAllString(sentences[0], ""))
	}

	return ""
}

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace. Good enough for marker-to-claim mapping over model output.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)

	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}

		// Keep trailing markers like "[2]" attached to the sentence.
		end := i + 1
		for end < len(runes) && runes[end] == '[' {
			j := end + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}

			if j < len(runes) && j > end+1 && runes[j] == ']' {
				end = j + 1
			} else {
				break
			}
		}

		if end < len(runes) && runes[end] != ' ' && runes[end] != '\n' && runes[end] != '\t' {
			continue
		}

		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}

		i = end
		start = end
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}

	return out
}

var spaceRe = regexp.MustCompile(`[ \t]{2,}`)

func collapseSpaces(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " .", ".")
	s = strings.ReplaceAll(s, " ,", ",")

	return strings.TrimSpace(s)
}
