// Package storage defines the durable record layer beneath the entity store.
//
// Every entity is persisted as one record keyed by (kind, id) holding its full
// JSON body. Drivers apply a Batch atomically: either every put, delete and
// counter update in the batch is visible after Commit returns, or none is.
package storage

import (
	"context"
	"encoding/json"
)

// Driver persists entity records and ID counters.
type Driver interface {
	// Load returns every stored record and counter.
	Load(ctx context.Context) (*Snapshot, error)

	// Commit applies the batch as a single atomic unit.
	Commit(ctx context.Context, batch *Batch) error

	// Close closes the store and releases any resources.
	Close() error
}

// Key addresses one record.
type Key struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Record is the durable form of one entity.
type Record struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Key returns the record's key.
func (r Record) Key() Key {
	return Key{Kind: r.Kind, ID: r.ID}
}

// Batch is the unit of atomic persistence.
type Batch struct {
	Puts     []Record
	Deletes  []Key
	Counters map[string]int
}

// Empty reports whether the batch carries no changes.
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Puts) == 0 && len(b.Deletes) == 0 && len(b.Counters) == 0)
}

// Snapshot is the full stored state.
type Snapshot struct {
	Records  []Record
	Counters map[string]int
}
