// Package inmemory provides a map-backed storage driver for tests and
// ephemeral projects.
package inmemory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/chronicle/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards records, counters and failNext
	mu sync.RWMutex

	records  map[storage.Key][]byte
	counters map[string]int

	// failNext, when set, is returned by the next Commit instead of applying it
	failNext error
	closed   bool
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		records:  make(map[storage.Key][]byte),
		counters: make(map[string]int),
	}
}

// Load returns a copy of every stored record, ordered by kind then id.
func (d *Driver) Load(_ context.Context) (*storage.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, storage.ErrClosed
	}

	snap := &storage.Snapshot{
		Records:  make([]storage.Record, 0, len(d.records)),
		Counters: maps.Clone(d.counters),
	}
	for k, body := range d.records {
		snap.Records = append(snap.Records, storage.Record{Kind: k.Kind, ID: k.ID, Body: slices.Clone(body)})
	}
	slices.SortFunc(snap.Records, func(a, b storage.Record) int {
		if c := strings.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return snap, nil
}

// Commit applies the batch under the write lock.
func (d *Driver) Commit(_ context.Context, batch *storage.Batch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return storage.ErrClosed
	}

	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		return storage.CommitError{Err: err}
	}

	if batch.Empty() {
		return nil
	}

	for _, k := range batch.Deletes {
		delete(d.records, k)
	}
	for _, r := range batch.Puts {
		d.records[r.Key()] = slices.Clone(r.Body)
	}
	for k, v := range batch.Counters {
		d.counters[k] = v
	}

	return nil
}

// FailNextCommit makes the next Commit fail with err without applying anything.
func (d *Driver) FailNextCommit(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = err
}

// Len returns the number of stored records.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Close marks the driver closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
