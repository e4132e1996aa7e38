// Package embedding defines the embedding client contract used across the
// query pipeline, ingestion, and evaluation.
package embedding

import "context"

// Client maps text to a fixed-dimension vector. Implementations are remote
// model calls and own their retry and timeout policy.
type Client interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}
