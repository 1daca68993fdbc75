package store

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// Tx is the pending buffer for one unit of work. It is not safe for
// concurrent use; it belongs to the goroutine that opened it.
type Tx struct {
	store *Store
	tick  int

	staged   map[string]world.Entity
	order    []string
	created  []string
	deleted  map[string]world.Kind
	counters map[string]int

	done bool
}

// TickNumber returns the tick the transaction stamps its changes with.
func (tx *Tx) TickNumber() int {
	return tx.tick
}

// Get implements Reader with read-your-writes semantics.
func (tx *Tx) Get(id string) (world.Entity, error) {
	e, ok := tx.lookup(id)
	if !ok {
		return nil, world.NotFoundError{ID: id}
	}
	return world.Clone(e), nil
}

// lookup returns the live entity without copying it.
func (tx *Tx) lookup(id string) (world.Entity, bool) {
	if _, gone := tx.deleted[id]; gone {
		return nil, false
	}
	if e, ok := tx.staged[id]; ok {
		return e, true
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	e, ok := tx.store.entities[id]
	return e, ok
}

// List implements Reader.
func (tx *Tx) List(kind world.Kind, filter Filter) []world.Entity {
	var out []world.Entity
	for _, e := range tx.live(kind) {
		if filter == nil || filter(e) {
			out = append(out, world.Clone(e))
		}
	}
	return out
}

// live returns uncopied live entities of kind, merging staged over committed.
func (tx *Tx) live(kind world.Kind) []world.Entity {
	var out []world.Entity

	tx.store.mu.RLock()
	for id, e := range tx.store.entities {
		if e.Kind() != kind {
			continue
		}
		if _, gone := tx.deleted[id]; gone {
			continue
		}
		if _, shadowed := tx.staged[id]; shadowed {
			continue
		}
		out = append(out, e)
	}
	tx.store.mu.RUnlock()

	for _, e := range tx.staged {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}

	sortByID(out)
	return out
}

// CharacterByName implements Reader.
func (tx *Tx) CharacterByName(fullName string) (*world.Character, bool) {
	key := world.NameKey(fullName)
	for _, e := range tx.live(world.KindCharacter) {
		c := e.(*world.Character)
		if world.NameKey(c.FullName()) == key {
			return world.Clone(c), true
		}
	}
	return nil, false
}

// Tick implements Reader. A tick advanced in this transaction is visible here.
func (tx *Tx) Tick() int {
	if t, ok := tx.counters[tickCounter]; ok {
		return t
	}
	return tx.store.Tick()
}

// AdvanceTick stages the world tick counter.
func (tx *Tx) AdvanceTick(tick int) {
	tx.counters[tickCounter] = tick
}

// Create validates e, allocates its ID and stages it. The caller's value is
// not modified.
func (tx *Tx) Create(e world.Entity) (string, error) {
	if tx.done {
		return "", ErrTxDone
	}

	e = world.Clone(e)
	meta := e.Base()
	meta.History = nil
	meta.SetTags(meta.Tags)

	if err := e.Validate(); err != nil {
		return "", err
	}
	if err := tx.checkRefs(e); err != nil {
		return "", err
	}
	if c, ok := e.(*world.Character); ok {
		if err := tx.checkName(c, ""); err != nil {
			return "", err
		}
	}

	kind := string(e.Kind())
	seq := max(tx.store.counter(kind), tx.counters[kind]) + 1
	tx.counters[kind] = seq

	meta.ID = world.FormatID(e.Kind(), seq)
	meta.CreatedTick = tx.tick

	tx.stage(e)
	tx.created = append(tx.created, meta.ID)

	return meta.ID, nil
}

// CreateRelationship creates r and, when mirrored, its inverse. It returns
// the IDs created.
func (tx *Tx) CreateRelationship(r *world.Relationship, mirrored bool) ([]string, error) {
	id, err := tx.Create(r)
	if err != nil {
		return nil, err
	}
	ids := []string{id}

	if mirrored {
		inv, err := tx.Create(r.Inverse())
		if err != nil {
			return nil, err
		}
		ids = append(ids, inv)
	}

	return ids, nil
}

// Update applies patch to the entity, recording one history entry per
// changed field.
func (tx *Tx) Update(id string, patch world.Patch) error {
	if tx.done {
		return ErrTxDone
	}

	cur, ok := tx.lookup(id)
	if !ok {
		return world.NotFoundError{ID: id}
	}

	next := world.Clone(cur)
	if err := world.Apply(next, patch, tx.tick); err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}
	if err := tx.checkRefs(next); err != nil {
		return err
	}

	if c, ok := next.(*world.Character); ok && renames(patch) {
		if err := tx.checkName(c, id); err != nil {
			return err
		}
	}

	tx.stage(next)
	return nil
}

func renames(patch world.Patch) bool {
	for _, f := range world.NameFields {
		if _, ok := patch[f]; ok {
			return true
		}
	}
	return false
}

// Delete removes a lore item or checkpoint. Deleting a lore item strips its
// ID from every item that links to it.
func (tx *Tx) Delete(id string) error {
	if tx.done {
		return ErrTxDone
	}

	kind, ok := world.KindOf(id)
	if !ok {
		return world.NotFoundError{ID: id}
	}
	if !kind.Deletable() {
		return fmt.Errorf("%w: %s", world.ErrNotDeletable, id)
	}
	if _, ok := tx.lookup(id); !ok {
		return world.NotFoundError{ID: id}
	}

	if kind == world.KindLore {
		for _, e := range tx.live(world.KindLore) {
			linked := e.(*world.LoreItem)
			if linked.ID == id || !linked.ContradictsWith(id) {
				continue
			}
			remaining := slices.DeleteFunc(slices.Clone(linked.Contradicts), func(c string) bool { return c == id })
			if err := tx.Update(linked.ID, world.Patch{"contradicts": remaining}); err != nil {
				return fmt.Errorf("unlinking %s from %s: %w", id, linked.ID, err)
			}
		}
	}

	delete(tx.staged, id)
	tx.deleted[id] = kind
	return nil
}

func (tx *Tx) stage(e world.Entity) {
	id := e.Base().ID
	if _, ok := tx.staged[id]; !ok {
		tx.order = append(tx.order, id)
	}
	tx.staged[id] = e
}

func (tx *Tx) checkRefs(e world.Entity) error {
	switch v := e.(type) {
	case *world.Character:
		return tx.require(world.KindLocation, v.State.LocationID)
	case *world.Location:
		return tx.requireAll(world.KindCharacter, v.Occupants)
	case *world.Relationship:
		if err := tx.require(world.KindCharacter, v.SourceID); err != nil {
			return err
		}
		return tx.require(world.KindCharacter, v.TargetID)
	case *world.LoreItem:
		if err := tx.require(world.KindScene, v.SourceSceneID); err != nil {
			return err
		}
		return tx.requireAll(world.KindLore, v.Contradicts)
	case *world.PlotBeat:
		if err := tx.requireAll(world.KindCharacter, v.RequiredCharacters); err != nil {
			return err
		}
		if err := tx.require(world.KindLocation, v.RequiredLocation); err != nil {
			return err
		}
		return tx.require(world.KindScene, v.ExecutedInScene)
	case *world.Scene:
		if err := tx.require(world.KindCharacter, v.POVCharacterID); err != nil {
			return err
		}
		return tx.require(world.KindBeat, v.BeatID)
	}
	return nil
}

func (tx *Tx) require(kind world.Kind, id string) error {
	if id == "" {
		return nil
	}
	e, ok := tx.lookup(id)
	if !ok || e.Kind() != kind {
		return world.NotFoundError{ID: id}
	}
	return nil
}

func (tx *Tx) requireAll(kind world.Kind, ids []string) error {
	for _, id := range ids {
		if err := tx.require(kind, id); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) checkName(c *world.Character, self string) error {
	key := world.NameKey(c.FullName())
	for _, e := range tx.live(world.KindCharacter) {
		other := e.(*world.Character)
		if other.ID != self && world.NameKey(other.FullName()) == key {
			return world.DuplicateEntityError{
				Kind:       world.KindCharacter,
				Key:        c.FullName(),
				ExistingID: other.ID,
			}
		}
	}
	return nil
}

// Created returns the IDs created in this transaction, in creation order.
func (tx *Tx) Created() []string {
	var out []string
	for _, id := range tx.created {
		if _, ok := tx.staged[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Touched returns the IDs created or updated in this transaction, in the
// order they were first staged.
func (tx *Tx) Touched() []string {
	var out []string
	for _, id := range tx.order {
		if _, ok := tx.staged[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Deleted returns the IDs deleted in this transaction.
func (tx *Tx) Deleted() []string {
	ids := make([]string, 0, len(tx.deleted))
	for id := range tx.deleted {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Empty reports whether the transaction staged anything.
func (tx *Tx) Empty() bool {
	return len(tx.staged) == 0 && len(tx.deleted) == 0 && len(tx.counters) == 0
}

// Commit persists every staged change as one atomic batch and publishes it
// to readers. Cancellation of ctx is ignored: once started, a commit runs to
// completion.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	ctx = context.WithoutCancel(ctx)

	s := tx.store
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	for _, id := range tx.created {
		if s.exists(id) {
			return fmt.Errorf("%w: %s", ErrConflict, id)
		}
	}

	batch := &storage.Batch{Counters: make(map[string]int)}
	for _, id := range tx.Touched() {
		rec, err := encode(tx.staged[id])
		if err != nil {
			return err
		}
		batch.Puts = append(batch.Puts, rec)
	}
	for _, id := range tx.Deleted() {
		if slices.Contains(tx.created, id) {
			continue
		}
		batch.Deletes = append(batch.Deletes, storage.Key{Kind: string(tx.deleted[id]), ID: id})
	}
	for name, v := range tx.counters {
		if name == tickCounter || v > s.counter(name) {
			batch.Counters[name] = v
		}
	}

	if err := s.driver.Commit(ctx, batch); err != nil {
		return fmt.Errorf("committing tick %d: %w", tx.tick, err)
	}

	s.apply(tx)

	s.logger.Debug("transaction committed",
		zap.Int("tick", tx.tick),
		zap.Int("puts", len(batch.Puts)),
		zap.Int("deletes", len(batch.Deletes)),
	)

	return nil
}

// Discard drops the pending buffer. It is safe to call after Commit.
func (tx *Tx) Discard() {
	if tx.done {
		return
	}
	tx.done = true
	tx.staged = nil
	tx.deleted = nil
	tx.order = nil
	tx.created = nil
}

// apply publishes a committed transaction to the in-memory state.
func (s *Store) apply(tx *Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	renamed := false
	for id, e := range tx.staged {
		s.entities[id] = e
		if e.Kind() == world.KindCharacter {
			renamed = true
		}
	}
	for id := range tx.deleted {
		delete(s.entities, id)
	}
	for name, v := range tx.counters {
		if name == tickCounter || v > s.counters[name] {
			s.counters[name] = v
		}
	}

	if renamed {
		s.names = make(map[string]string, len(s.names)+1)
		for id, e := range s.entities {
			if c, ok := e.(*world.Character); ok {
				s.names[world.NameKey(c.FullName())] = id
			}
		}
	}
}
