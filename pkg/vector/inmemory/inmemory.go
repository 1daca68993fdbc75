// Package inmemory provides a brute-force in-memory vector driver.
package inmemory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/chronicle/pkg/vector"
)

// Driver implements vector.Driver with a map and exhaustive cosine scoring.
type Driver struct {
	mu   sync.RWMutex
	docs map[string]vector.Document
}

// NewDriver creates an empty in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{docs: make(map[string]vector.Document)}
}

// Add upserts documents.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		d.docs[doc.ID] = clone(doc)
	}
	return nil
}

// Query scores every matching document against the embedding.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]vector.QueryResult, 0, len(d.docs))
	for _, doc := range d.docs {
		if !filter.Matches(doc.Metadata) {
			continue
		}
		results = append(results, vector.QueryResult{
			Document: clone(doc),
			Score:    vector.Cosine(embedding, doc.Embedding),
		})
	}

	slices.SortFunc(results, func(a, b vector.QueryResult) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Get retrieves documents by ID.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []vector.Document
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

// List returns every document ordered by ID.
func (d *Driver) List(_ context.Context) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]vector.Document, 0, len(d.docs))
	for _, id := range slices.Sorted(maps.Keys(d.docs)) {
		out = append(out, clone(d.docs[id]))
	}
	return out, nil
}

// Delete removes documents by ID.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}
	return nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func clone(doc vector.Document) vector.Document {
	doc.Metadata = maps.Clone(doc.Metadata)
	doc.Embedding = slices.Clone(doc.Embedding)
	return doc
}

var _ vector.Driver = (*Driver)(nil)
