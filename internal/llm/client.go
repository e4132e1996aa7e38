// Package llm wraps the chat-completion API used by the generator, the
// faithfulness verifier, and the evaluation engine.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// ErrEmptyCompletion is returned when the API response contains no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion response")

// ChatClient produces a completion for a system/user prompt pair.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIChat calls the OpenAI chat completions API with bounded retry and a
// per-attempt timeout. Temperature is pinned to 0 so generation and
// verification stay as deterministic as the model allows.
type OpenAIChat struct {
	sdk        openaisdk.Client
	model      string
	maxTokens  int64
	maxRetries int
	timeout    time.Duration
}

// ChatOption configures the OpenAIChat client.
type ChatOption func(*OpenAIChat)

// WithChatModel sets the chat model name.
func WithChatModel(model string) ChatOption {
	return func(c *OpenAIChat) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxRetries sets how many times a failed call is retried (0 disables retries).
func WithMaxRetries(n int) ChatOption {
	return func(c *OpenAIChat) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout sets the hard per-attempt timeout.
func WithTimeout(d time.Duration) ChatOption {
	return func(c *OpenAIChat) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewOpenAIChat creates a chat client using the official SDK.
func NewOpenAIChat(apiKey string, opts ...ChatOption) *OpenAIChat {
	client := &OpenAIChat{
		sdk:        openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model:      string(openaisdk.ChatModelGPT4o),
		maxTokens:  4096,
		maxRetries: 2,
		timeout:    120 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Complete sends one system+user exchange and returns the assistant text.
// Retries with exponential backoff up to the configured attempt budget;
// context cancellation stops retrying immediately.
func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error

	backoff := time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("llm complete: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
		}

		out, err := c.completeOnce(ctx, system, user)
		if err == nil {
			return out, nil
		}

		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}
	}

	return "", fmt.Errorf("llm complete after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *OpenAIChat) completeOnce(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openaisdk.ChatCompletionMessageParamUnion{
		openaisdk.UserMessage(user),
	}
	if system != "" {
		messages = append([]openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
		}, messages...)
	}

	resp, err := c.sdk.Chat.Completions.New(callCtx, openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   param.NewOpt(c.maxTokens),
		Temperature: param.NewOpt(0.0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
