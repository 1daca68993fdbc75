// Package vector provides interfaces and implementations for vector storage.
//
// Every driver scores results as cosine similarity clamped to [0, 1], so
// scores are comparable across drivers and thresholds mean the same thing
// regardless of backend.
package vector

import (
	"context"
	"math"
)

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is a unique identifier for the document (the entity ID).
	ID string

	// Content is the text the embedding was computed from.
	Content string

	// Metadata holds exact-match filterable attributes.
	Metadata map[string]string

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity in [0, 1] (higher = more similar).
	Score float32
}

// Filter restricts a query to documents whose metadata matches every pair.
type Filter map[string]string

// Matches reports whether metadata satisfies the filter.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding
	// among those matching filter. A nil filter matches everything.
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// List returns every stored document including its embedding.
	List(ctx context.Context) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Cosine returns the cosine similarity of a and b clamped to [0, 1].
// Mismatched or zero-length vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}

	return ClampScore(float32(dot / (math.Sqrt(na) * math.Sqrt(nb))))
}

// ClampScore limits a similarity to [0, 1].
func ClampScore(s float32) float32 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// ScoreFromCosineDistance converts a cosine distance (1 - cos) to a score.
func ScoreFromCosineDistance(d float64) float32 {
	return ClampScore(float32(1 - d))
}
