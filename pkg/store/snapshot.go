package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// Snapshot is the exported world state. Checkpoint records are not part of
// it: they describe snapshots rather than the world.
type Snapshot struct {
	Tick     int              `json:"tick"`
	Counters map[string]int   `json:"counters"`
	Records  []storage.Record `json:"records"`
}

// Export returns the committed world state.
func (s *Store) Export() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Tick:     s.counters[tickCounter],
		Counters: make(map[string]int),
	}
	for name, v := range s.counters {
		if name != tickCounter && name != string(world.KindCheckpoint) {
			snap.Counters[name] = v
		}
	}

	for _, e := range s.entities {
		if e.Kind() == world.KindCheckpoint {
			continue
		}
		rec, err := encode(e)
		if err != nil {
			return nil, err
		}
		snap.Records = append(snap.Records, rec)
	}
	sortRecords(snap.Records)

	return snap, nil
}

// Import replaces the world state with snap in one atomic batch. Existing
// checkpoint records are kept, and ID counters only move forward so IDs
// issued after the snapshot was taken are never issued again.
func (s *Store) Import(ctx context.Context, snap *Snapshot) error {
	ctx = context.WithoutCancel(ctx)

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	incoming := make([]storage.Record, 0, len(snap.Records))
	for _, r := range snap.Records {
		if r.Kind == string(world.KindCheckpoint) {
			continue
		}
		if _, err := world.Decode(world.Kind(r.Kind), r.Body); err != nil {
			return fmt.Errorf("importing %s: %w", r.ID, err)
		}
		incoming = append(incoming, r)
	}

	s.mu.RLock()
	batch := &storage.Batch{Counters: maps.Clone(s.counters)}
	var kept []storage.Record
	for id, e := range s.entities {
		if e.Kind() == world.KindCheckpoint {
			rec, err := encode(e)
			if err != nil {
				s.mu.RUnlock()
				return err
			}
			kept = append(kept, rec)
			continue
		}
		batch.Deletes = append(batch.Deletes, storage.Key{Kind: string(e.Kind()), ID: id})
	}
	s.mu.RUnlock()

	if batch.Counters == nil {
		batch.Counters = make(map[string]int)
	}
	for name, v := range snap.Counters {
		if v > batch.Counters[name] {
			batch.Counters[name] = v
		}
	}
	batch.Counters[tickCounter] = snap.Tick
	batch.Puts = incoming

	slices.SortFunc(batch.Deletes, func(a, b storage.Key) int { return strings.Compare(a.ID, b.ID) })

	if err := s.driver.Commit(ctx, batch); err != nil {
		return fmt.Errorf("importing snapshot: %w", err)
	}

	return s.replace(append(kept, incoming...), batch.Counters)
}

func sortRecords(rs []storage.Record) {
	slices.SortFunc(rs, func(a, b storage.Record) int {
		if c := strings.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		if d := world.Seq(a.ID) - world.Seq(b.ID); d != 0 {
			return d
		}
		return strings.Compare(a.ID, b.ID)
	})
}
