// Package embed turns text into dense vectors.
//
// Providers implement Embedder. The Gateway sits in front of a provider and
// turns its all-or-nothing batch calls into a per-item result: bounded
// batches, a pause between batches, retry with backoff, then per-item
// fallback so one bad text never discards its neighbours.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for one provider request
	DefaultTimeout = 60 * time.Second

	// DefaultInterBatchDelay is the pause between embedding batches
	DefaultInterBatchDelay = 100 * time.Millisecond

	// MaxInterBatchDelay caps the pause to prevent excessive slowdown
	MaxInterBatchDelay = 5 * time.Second

	// DefaultMaxParallel bounds concurrent batch requests
	DefaultMaxParallel = 2

	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3
)

// StaticDimensions is the default dimension for the static embedder.
const StaticDimensions = 256

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// aligned with texts; any error fails the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
