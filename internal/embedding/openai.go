package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("embedding: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("embedding: dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("embedding: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

const defaultDimension = 384

// OpenAIClient calls the OpenAI embeddings API via the official SDK, with
// bounded retry and a hard per-attempt timeout. SDK-internal retries are
// disabled so the attempt budget here is the only one.
type OpenAIClient struct {
	sdk        openaisdk.Client
	sdkOptions []option.RequestOption
	model      string
	dimensions int
	maxRetries int
	timeout    time.Duration
}

// OpenAIOption configures the OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithModel sets the embedding model name.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithDimensions sets the requested embedding dimension (must match the DB column).
func WithDimensions(dim int) OpenAIOption {
	return func(c *OpenAIClient) {
		c.dimensions = dim
	}
}

// WithMaxRetries sets how many times a failed call is retried (0 disables retries).
func WithMaxRetries(n int) OpenAIOption {
	return func(c *OpenAIClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout sets the hard per-attempt timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) {
		if url != "" {
			c.sdkOptions = append(c.sdkOptions, option.WithBaseURL(url))
		}
	}
}

// NewOpenAIClient creates an OpenAI embeddings client using the official SDK.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	client := &OpenAIClient{
		sdkOptions: []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)},
		model:      string(openaisdk.EmbeddingModelTextEmbedding3Small),
		dimensions: defaultDimension,
		maxRetries: 2,
		timeout:    30 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.sdk = openaisdk.NewClient(client.sdkOptions...)

	return client
}

// CreateEmbedding returns the embedding vector for the given text.
// The returned slice length equals the configured dimensions. Retries with
// exponential backoff up to the configured attempt budget; context
// cancellation stops retrying immediately.
func (c *OpenAIClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	var lastErr error

	backoff := time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("create embedding: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
		}

		out, err := c.createOnce(ctx, input)
		if err == nil {
			return out, nil
		}

		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}
	}

	return nil, fmt.Errorf("create embedding after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *OpenAIClient) createOnce(ctx context.Context, input string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.sdk.Embeddings.New(callCtx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(input),
		},
		Model:      openaisdk.EmbeddingModel(c.model),
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	emb := resp.Data[0].Embedding
	if len(emb) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
	}

	out := make([]float32, len(emb))
	for i := range emb {
		out[i] = float32(emb[i])
	}

	return out, nil
}
