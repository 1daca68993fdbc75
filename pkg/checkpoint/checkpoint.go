// Package checkpoint snapshots a project into a single JSON bundle and
// restores it.
//
// A bundle carries the full world state and every entry of both semantic
// indices, embeddings included, so restoring never calls the embedder.
// Callers serialise checkpoint operations with ticks; the manager itself
// takes no project lock.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/chronicle/pkg/dotdir"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// BundleVersion is the bundle format written by Create.
const BundleVersion = 1

var (
	// ErrBundleMissing is returned when a checkpoint record has no bundle file.
	ErrBundleMissing = errors.New("checkpoint bundle missing")

	// ErrBundleVersion is returned for bundles written in an unknown format.
	ErrBundleVersion = errors.New("unsupported checkpoint bundle version")
)

// Bundle is the on-disk checkpoint file.
type Bundle struct {
	Version   int                      `json:"version"`
	ID        string                   `json:"id"`
	Tick      int                      `json:"tick"`
	Message   string                   `json:"message,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	World     *store.Snapshot          `json:"world"`
	Indices   map[string][]index.Entry `json:"indices"`
}

// Config configures a Manager.
type Config struct {
	Store *store.Store

	// Indices are snapshotted and restored by name.
	Indices []*index.Index

	// Dir is the checkpoints directory. It is created if missing.
	Dir string

	Logger *zap.Logger
}

// Manager creates, restores, lists and deletes checkpoints.
type Manager struct {
	store   *store.Store
	indices []*index.Index
	dir     string
	logger  *zap.Logger

	now func() time.Time
}

// New creates a Manager.
func New(c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, errors.New("checkpoint: store is required")
	}
	if c.Dir == "" {
		return nil, errors.New("checkpoint: directory is required")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:   c.Store,
		indices: c.Indices,
		dir:     c.Dir,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create snapshots the store and every index, writes the bundle and then
// records the checkpoint. If recording fails the bundle is removed again.
func (m *Manager) Create(ctx context.Context, tick int, message string) (*world.Checkpoint, error) {
	id := m.store.NextID(world.KindCheckpoint)

	bundle := &Bundle{
		Version:   BundleVersion,
		ID:        id,
		Tick:      tick,
		Message:   message,
		CreatedAt: m.now(),
		Indices:   make(map[string][]index.Entry, len(m.indices)),
	}

	entries := make([][]index.Entry, len(m.indices))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := m.store.Export()
		if err != nil {
			return fmt.Errorf("exporting world: %w", err)
		}
		bundle.World = snap
		return nil
	})
	for n, idx := range m.indices {
		g.Go(func() error {
			es, err := idx.Entries(gctx)
			if err != nil {
				return err
			}
			entries[n] = es
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("creating checkpoint: %w", err)
	}
	for n, idx := range m.indices {
		bundle.Indices[idx.Name()] = entries[n]
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("encoding checkpoint bundle: %w", err)
	}

	name := id + ".json"
	path := filepath.Join(m.dir, name)
	if err := dotdir.WriteFileAtomic(path, data); err != nil {
		return nil, err
	}

	tx := m.store.Begin(m.store.Tick())
	defer tx.Discard()

	got, err := tx.Create(&world.Checkpoint{
		Tick:      tick,
		Message:   message,
		Bundle:    name,
		CreatedAt: bundle.CreatedAt,
	})
	if err == nil && got != id {
		err = fmt.Errorf("%w: checkpoint allocated %s, bundle written as %s", store.ErrConflict, got, id)
	}
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		if rmErr := dotdir.RemoveFile(path); rmErr != nil {
			m.logger.Warn("removing orphaned checkpoint bundle", zap.String("path", path), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("recording checkpoint: %w", err)
	}

	m.logger.Info("checkpoint created",
		zap.String("checkpoint_id", id),
		zap.Int("tick", tick),
		zap.Int("bytes", len(data)),
	)

	return store.GetAs[*world.Checkpoint](m.store, id)
}

// Load reads the bundle of checkpoint id.
func (m *Manager) Load(id string) (*Bundle, error) {
	cp, err := store.GetAs[*world.Checkpoint](m.store, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(m.dir, cp.Bundle))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBundleMissing, cp.Bundle)
		}
		return nil, fmt.Errorf("reading checkpoint bundle: %w", err)
	}

	bundle := &Bundle{}
	if err := json.Unmarshal(data, bundle); err != nil {
		return nil, fmt.Errorf("parsing checkpoint bundle %s: %w", cp.Bundle, err)
	}
	if bundle.Version != BundleVersion {
		return nil, fmt.Errorf("%w: %d", ErrBundleVersion, bundle.Version)
	}
	if bundle.World == nil {
		return nil, fmt.Errorf("parsing checkpoint bundle %s: no world snapshot", cp.Bundle)
	}

	return bundle, nil
}

// Restore replaces the world and both indices with checkpoint id. A safety
// checkpoint of the current state is created first and returned.
func (m *Manager) Restore(ctx context.Context, id string) (*world.Checkpoint, error) {
	bundle, err := m.Load(id)
	if err != nil {
		return nil, err
	}

	safety, err := m.Create(ctx, m.store.Tick(), "auto: before restoring "+id)
	if err != nil {
		return nil, fmt.Errorf("creating safety checkpoint: %w", err)
	}

	if err := m.store.Import(ctx, bundle.World); err != nil {
		return safety, fmt.Errorf("restoring %s: %w", id, err)
	}
	for _, idx := range m.indices {
		if err := idx.Restore(ctx, bundle.Indices[idx.Name()]); err != nil {
			return safety, fmt.Errorf("restoring %s: %w", id, err)
		}
	}

	m.logger.Info("checkpoint restored",
		zap.String("checkpoint_id", id),
		zap.Int("tick", bundle.Tick),
		zap.String("safety_checkpoint_id", safety.ID),
	)

	return safety, nil
}

// List returns every checkpoint record ordered by ID.
func (m *Manager) List() []*world.Checkpoint {
	return store.ListAs[*world.Checkpoint](m.store, world.KindCheckpoint, nil)
}

// Delete removes the checkpoint record and then its bundle.
func (m *Manager) Delete(ctx context.Context, id string) error {
	cp, err := store.GetAs[*world.Checkpoint](m.store, id)
	if err != nil {
		return err
	}

	tx := m.store.Begin(m.store.Tick())
	defer tx.Discard()
	if err := tx.Delete(id); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", id, err)
	}

	if err := dotdir.RemoveFile(filepath.Join(m.dir, cp.Bundle)); err != nil {
		return err
	}

	m.logger.Info("checkpoint deleted", zap.String("checkpoint_id", id))
	return nil
}
