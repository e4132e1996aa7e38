// Package reranker calls the cross-encoder sidecar service. Reranking is
// optional: the pipeline runs without it when no sidecar URL is configured.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/ragerrors"
)

// Document is one candidate passage sent for scoring.
type Document struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
}

// Client scores query/document pairs. Implementations return one score per
// submitted document, keyed by document ID.
type Client interface {
	Rerank(ctx context.Context, query string, docs []Document) (map[uuid.UUID]float64, error)
}

// HTTPClient talks to the cross-encoder sidecar over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// Option configures the HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// NewHTTPClient creates a sidecar client for the given base URL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

type rerankRequest struct {
	Query      string     `json:"query"`
	Candidates []Document `json:"candidates"`
}

type rerankResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// Rerank posts the query and candidates to the sidecar and returns relevance
// scores keyed by document ID. Sidecar failures surface as UpstreamError so
// the caller can degrade gracefully.
func (h *HTTPClient) Rerank(ctx context.Context, query string, docs []Document) (map[uuid.UUID]float64, error) {
	if len(docs) == 0 {
		return map[uuid.UUID]float64{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Candidates: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ragerrors.NewUpstreamError("reranker", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, ragerrors.NewUpstreamError("reranker",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ragerrors.NewUpstreamError("reranker", "decode response: "+err.Error())
	}

	scores := make(map[uuid.UUID]float64, len(parsed.Scores))

	for raw, score := range parsed.Scores {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}

		scores[id] = score
	}

	return scores, nil
}
