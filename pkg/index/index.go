// Package index is the semantic index: embedding-backed similarity search
// keyed by entity ID.
//
// A project keeps two indices, one over world entities and scenes used for
// context retrieval, and one over lore items used for contradiction
// detection. Both share the same embedder so scores are comparable.
package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/embeddings"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

const (
	// Entities is the name of the index over characters, locations,
	// relationships, beats and scenes.
	Entities = "entities"

	// Lore is the name of the lore index.
	Lore = "lore"
)

// Hit is one search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// Entry is one indexed record, including its embedding.
type Entry struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding"`
}

// Config configures an Index.
type Config struct {
	// Name identifies the index in logs and checkpoints.
	Name string

	Embedder embeddings.Embedder
	Driver   vector.Driver
	Logger   *zap.Logger
}

// Index pairs an embedder with a vector driver.
type Index struct {
	name     string
	embedder embeddings.Embedder
	driver   vector.Driver
	logger   *zap.Logger
}

// New creates an Index.
func New(c Config) (*Index, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("index %q: embedder is required", c.Name)
	}
	if c.Driver == nil {
		return nil, fmt.Errorf("index %q: vector driver is required", c.Name)
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Index{
		name:     c.Name,
		embedder: c.Embedder,
		driver:   c.Driver,
		logger:   logger.With(zap.String("index", c.Name)),
	}, nil
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// Index embeds text and upserts it under id.
func (i *Index) Index(ctx context.Context, id, text string, metadata map[string]string) error {
	emb, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", id, err)
	}

	err = i.driver.Add(ctx, []vector.Document{{
		ID:        id,
		Content:   text,
		Metadata:  metadata,
		Embedding: emb,
	}})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", id, err)
	}

	i.logger.Debug("indexed entry", zap.String("id", id))
	return nil
}

// Search returns up to topK hits for query among entries matching filter,
// ordered by score descending, then ID ascending.
func (i *Index) Search(ctx context.Context, query string, topK int, filter vector.Filter) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	emb, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := i.driver.Query(ctx, emb, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("querying %s index: %w", i.name, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: r.ID, Score: vector.ClampScore(r.Score)})
	}
	SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}

	i.logger.Debug("searched index",
		zap.String("query", query),
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
	)

	return hits, nil
}

// SortHits orders hits by score descending, then ID ascending.
func SortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Remove deletes entries by ID. Unknown IDs are ignored.
func (i *Index) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.driver.Delete(ctx, ids); err != nil {
		return fmt.Errorf("removing from %s index: %w", i.name, err)
	}
	return nil
}

// Entries returns every indexed entry ordered by ID.
func (i *Index) Entries(ctx context.Context) ([]Entry, error) {
	docs, err := i.driver.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s index: %w", i.name, err)
	}

	entries := make([]Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, Entry{
			ID:        d.ID,
			Text:      d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return entries, nil
}

// Restore replaces the index contents with entries. Stored embeddings are
// reused, so restoring does not call the embedder.
func (i *Index) Restore(ctx context.Context, entries []Entry) error {
	current, err := i.driver.List(ctx)
	if err != nil {
		return fmt.Errorf("listing %s index: %w", i.name, err)
	}

	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.ID] = struct{}{}
	}
	var stale []string
	for _, d := range current {
		if _, ok := keep[d.ID]; !ok {
			stale = append(stale, d.ID)
		}
	}
	if err := i.Remove(ctx, stale...); err != nil {
		return err
	}

	if len(entries) > 0 {
		docs := make([]vector.Document, len(entries))
		for n, e := range entries {
			docs[n] = vector.Document{
				ID:        e.ID,
				Content:   e.Text,
				Metadata:  e.Metadata,
				Embedding: e.Embedding,
			}
		}
		if err := i.driver.Add(ctx, docs); err != nil {
			return fmt.Errorf("restoring %s index: %w", i.name, err)
		}
	}

	i.logger.Info("restored index",
		zap.Int("entries", len(entries)),
		zap.Int("removed", len(stale)),
	)
	return nil
}

// Close closes the vector driver. The embedder is shared and left open.
func (i *Index) Close() error {
	return i.driver.Close()
}
