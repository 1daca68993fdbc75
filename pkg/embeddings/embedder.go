// Package embeddings defines the text embedding boundary used by the
// semantic indices.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when an embedder cannot produce a vector.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
