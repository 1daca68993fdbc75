// Package store is the entity store: the only path through which world
// entities are created, mutated and deleted.
//
// Writes are staged in a Tx and become visible to readers only when the Tx
// commits. A commit persists every staged record, deletion and ID counter as
// one storage batch, so a crash leaves either the pre-commit or the
// post-commit state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// tickCounter is the counter holding the last committed world tick.
const tickCounter = "tick"

var (
	// ErrTxDone is returned when a committed or discarded Tx is used.
	ErrTxDone = errors.New("transaction already finished")

	// ErrConflict is returned when two transactions allocated the same ID.
	ErrConflict = errors.New("conflicting transaction committed first")
)

// Filter selects entities in List. A nil filter selects everything.
type Filter func(world.Entity) bool

// Reader is the read surface shared by the committed Store and an open Tx.
type Reader interface {
	// Get returns a copy of the entity with the given ID.
	Get(id string) (world.Entity, error)

	// List returns copies of every entity of kind that passes filter, in ID order.
	List(kind world.Kind, filter Filter) []world.Entity

	// CharacterByName finds a live character by full name, case-insensitively.
	CharacterByName(fullName string) (*world.Character, bool)

	// Tick returns the last committed world tick.
	Tick() int
}

// Store holds the committed world state in memory, backed by a storage driver.
type Store struct {
	mu sync.RWMutex

	// commitMu serialises commits and imports
	commitMu sync.Mutex

	driver storage.Driver
	logger *zap.Logger

	entities map[string]world.Entity
	names    map[string]string
	counters map[string]int
}

// Open loads the committed state from the driver.
func Open(ctx context.Context, driver storage.Driver, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		driver: driver,
		logger: logger,
	}

	snap, err := driver.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store: %w", err)
	}

	if err := s.replace(snap.Records, snap.Counters); err != nil {
		return nil, err
	}

	s.logger.Debug("store opened",
		zap.Int("entities", len(s.entities)),
		zap.Int("tick", s.counters[tickCounter]),
	)

	return s, nil
}

// replace swaps the in-memory state for the given records. Counters are raised
// to cover every loaded ID so a stale counter can never re-issue one.
func (s *Store) replace(records []storage.Record, counters map[string]int) error {
	entities := make(map[string]world.Entity, len(records))
	names := make(map[string]string)
	next := maps.Clone(counters)
	if next == nil {
		next = make(map[string]int)
	}

	for _, r := range records {
		e, err := world.Decode(world.Kind(r.Kind), r.Body)
		if err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		entities[r.ID] = e

		if c, ok := e.(*world.Character); ok {
			names[world.NameKey(c.FullName())] = c.ID
		}

		if seq := world.Seq(r.ID); seq > next[r.Kind] {
			next[r.Kind] = seq
		}
	}

	s.mu.Lock()
	s.entities = entities
	s.names = names
	s.counters = next
	s.mu.Unlock()

	return nil
}

// Begin opens a transaction stamped with tick.
func (s *Store) Begin(tick int) *Tx {
	return &Tx{
		store:    s,
		tick:     tick,
		staged:   make(map[string]world.Entity),
		deleted:  make(map[string]world.Kind),
		counters: make(map[string]int),
	}
}

// Get implements Reader.
func (s *Store) Get(id string) (world.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, world.NotFoundError{ID: id}
	}
	return world.Clone(e), nil
}

// List implements Reader.
func (s *Store) List(kind world.Kind, filter Filter) []world.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []world.Entity
	for _, e := range s.entities {
		if e.Kind() == kind && (filter == nil || filter(e)) {
			out = append(out, world.Clone(e))
		}
	}
	sortByID(out)
	return out
}

// CharacterByName implements Reader.
func (s *Store) CharacterByName(fullName string) (*world.Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.names[world.NameKey(fullName)]
	if !ok {
		return nil, false
	}
	return world.Clone(s.entities[id].(*world.Character)), true
}

// Tick implements Reader.
func (s *Store) Tick() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[tickCounter]
}

// Counts returns the number of live entities per kind.
func (s *Store) Counts() map[world.Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[world.Kind]int, len(world.Kinds))
	for _, e := range s.entities {
		counts[e.Kind()]++
	}
	return counts
}

// NextID returns the ID the next committed create of kind will receive,
// assuming no other transaction creates one first.
func (s *Store) NextID(kind world.Kind) string {
	return world.FormatID(kind, s.counter(string(kind))+1)
}

func (s *Store) counter(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}

func (s *Store) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[id]
	return ok
}

// Close closes the storage driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

func sortByID(es []world.Entity) {
	slices.SortFunc(es, func(a, b world.Entity) int {
		if d := world.Seq(a.Base().ID) - world.Seq(b.Base().ID); d != 0 {
			return d
		}
		if a.Base().ID < b.Base().ID {
			return -1
		}
		if a.Base().ID > b.Base().ID {
			return 1
		}
		return 0
	})
}

func encode(e world.Entity) (storage.Record, error) {
	body, err := world.Encode(e)
	if err != nil {
		return storage.Record{}, fmt.Errorf("encoding %s: %w", e.Base().ID, err)
	}
	return storage.Record{Kind: string(e.Kind()), ID: e.Base().ID, Body: json.RawMessage(body)}, nil
}
