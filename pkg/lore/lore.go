// Package lore detects and links contradicting lore items.
//
// Detection is a similarity heuristic: a new item is compared against the
// lore index, and close neighbours in the same category whose types can
// conflict are linked in both directions. False positives are expected; a
// detected link is never dropped.
package lore

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/vector"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const (
	// DefaultThreshold is the minimum similarity for a link.
	DefaultThreshold = 0.5

	// DefaultTopK is the number of neighbours considered.
	DefaultTopK = 5
)

// Index is the part of index.Index the detector needs.
type Index interface {
	Index(ctx context.Context, id, text string, metadata map[string]string) error
	Search(ctx context.Context, query string, topK int, filter vector.Filter) ([]index.Hit, error)
}

// Config configures a Detector.
type Config struct {
	// Index is the lore index.
	Index Index

	// Threshold is the minimum similarity for a link. Nil means
	// DefaultThreshold; zero links every compatible neighbour and values
	// above 1 disable linking.
	Threshold *float64

	// TopK bounds the neighbours considered per item.
	TopK int

	Logger *zap.Logger
}

// Link is a detected contradiction between two lore items.
type Link struct {
	ItemID      string  `json:"item_id"`
	CandidateID string  `json:"candidate_id"`
	Score       float32 `json:"score"`
}

// Detector finds contradictions for new lore items.
type Detector struct {
	index     Index
	threshold float64
	topK      int
	logger    *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(c Config) *Detector {
	threshold := DefaultThreshold
	if c.Threshold != nil {
		threshold = *c.Threshold
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &Detector{index: c.Index, threshold: threshold, topK: c.TopK, logger: c.Logger}
}

// Check indexes item in the lore index, then links it with every close,
// type-compatible neighbour of the same category. Both sides of each link
// are updated in tx. item must already exist in tx.
func (d *Detector) Check(ctx context.Context, tx *store.Tx, item *world.LoreItem) ([]Link, error) {
	text, meta, _ := index.Document(item)
	if err := d.index.Index(ctx, item.ID, text, meta); err != nil {
		return nil, fmt.Errorf("indexing lore %s: %w", item.ID, err)
	}

	hits, err := d.index.Search(ctx, item.Content, d.topK+1, vector.Filter{
		index.MetaCategory: string(item.Category),
	})
	if err != nil {
		return nil, fmt.Errorf("searching lore for %s: %w", item.ID, err)
	}

	var links []Link
	for _, h := range hits {
		if h.ID == item.ID || float64(h.Score) < d.threshold {
			continue
		}

		candidate, err := store.GetAs[*world.LoreItem](tx, h.ID)
		if err != nil {
			d.logger.Debug("skipping stale lore hit", zap.String("id", h.ID))
			continue
		}
		if candidate.Category != item.Category || !Compatible(item.Type, candidate.Type) {
			continue
		}

		if err := link(tx, item.ID, candidate.ID); err != nil {
			return links, err
		}
		links = append(links, Link{ItemID: item.ID, CandidateID: candidate.ID, Score: h.Score})

		d.logger.Info("linked contradicting lore",
			zap.String("lore_id", item.ID),
			zap.String("candidate_id", candidate.ID),
			zap.Float32("score", h.Score),
		)
	}

	return links, nil
}

// link adds a and b to each other's contradicts set.
func link(tx *store.Tx, a, b string) error {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		it, err := store.GetAs[*world.LoreItem](tx, pair[0])
		if err != nil {
			return err
		}
		if it.ContradictsWith(pair[1]) {
			continue
		}
		next := append(slices.Clone(it.Contradicts), pair[1])
		if err := tx.Update(pair[0], world.Patch{"contradicts": next}); err != nil {
			return fmt.Errorf("linking %s to %s: %w", pair[0], pair[1], err)
		}
	}
	return nil
}

type pair struct{ a, b world.LoreType }

// conflicts lists the type pairings that can contradict. Compatible treats
// the table as symmetric.
var conflicts = map[pair]bool{
	{world.LoreRule, world.LoreRule}:             true,
	{world.LoreRule, world.LoreFact}:             true,
	{world.LoreRule, world.LoreConstraint}:       true,
	{world.LoreRule, world.LoreCapability}:       true,
	{world.LoreConstraint, world.LoreConstraint}: true,
	{world.LoreConstraint, world.LoreCapability}: true,
	{world.LoreConstraint, world.LoreFact}:       true,
	{world.LoreFact, world.LoreFact}:             true,
	{world.LoreFact, world.LoreLimitation}:       true,
	{world.LoreCapability, world.LoreLimitation}: true,
	{world.LoreLimitation, world.LoreLimitation}: true,
}

// Compatible reports whether lore of types a and b can contradict. Two
// capabilities never conflict.
func Compatible(a, b world.LoreType) bool {
	return conflicts[pair{a, b}] || conflicts[pair{b, a}]
}
