// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "ollama", "openai").
	Name() string

	// Embed generates an embedding for the given text.
	// Request options are deterministic (no sampling randomness).
	// Returns an error wrapping types.ErrEmbeddingUnavailable when the
	// provider cannot be reached; no retries are performed internally.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension size, or 0 if unknown
	// until the first successful call.
	Dimensions() int

	// Close releases any resources.
	Close() error
}
