// Package engine opens a chronicle project and serialises every operation
// that changes it.
//
// One Engine owns one project. Ticks, checkpoint operations, seeding and
// option changes all take the project lock, so ticks run strictly one after
// another and never overlap a checkpoint. Reads go straight to the store.
// Separate projects use separate Engines and run in parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/checkpoint"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/dotdir"
	"github.com/papercomputeco/chronicle/pkg/embeddings"
	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/lore"
	"github.com/papercomputeco/chronicle/pkg/metrics"
	"github.com/papercomputeco/chronicle/pkg/plot"
	"github.com/papercomputeco/chronicle/pkg/recall"
	"github.com/papercomputeco/chronicle/pkg/seed"
	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/tick"
	"github.com/papercomputeco/chronicle/pkg/tokens"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// ErrUnknownIndex is returned by Search for index names other than
// index.Entities and index.Lore.
var ErrUnknownIndex = errors.New("unknown index")

// Options configure Open. Collaborators left nil are built from Config.
type Options struct {
	// Project names the project in events and metrics. Defaults to the
	// name of the directory containing Dir.
	Project string

	// Dir is the project directory holding the database and checkpoints.
	Dir string

	Config *config.Config
	Logger *zap.Logger

	Storage   storage.Driver
	Embedder  embeddings.Embedder
	Vectors   VectorFactory
	Generator stage.Generator
	Publisher eventstream.Publisher
}

// Status summarises a project.
type Status struct {
	Project      string              `json:"project"`
	Tick         int                 `json:"tick"`
	Counts       map[world.Kind]int  `json:"counts"`
	PendingBeats int                 `json:"pending_beats"`
	Options      config.EngineConfig `json:"options"`
}

// Engine is an open project.
type Engine struct {
	// mu is the project lock.
	mu sync.Mutex

	project string
	dir     string
	cfg     config.Config
	logger  *zap.Logger

	store       *store.Store
	entities    *index.Index
	lore        *index.Index
	generator   stage.Generator
	counter     tokens.Counter
	publisher   eventstream.Publisher
	recorder    *metrics.Recorder
	checkpoints *checkpoint.Manager

	plot         atomic.Pointer[plot.Tracker]
	opts         atomic.Pointer[config.EngineConfig]
	orchestrator *tick.Orchestrator
}

// Open opens the project in o.Dir.
func Open(ctx context.Context, o Options) (*Engine, error) {
	if o.Dir == "" {
		return nil, errors.New("engine: project directory is required")
	}
	cfg := o.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	project := o.Project
	if project == "" {
		project = filepath.Base(filepath.Dir(o.Dir))
	}

	e := &Engine{
		project: project,
		dir:     o.Dir,
		cfg:     *cfg,
		logger:  logger.With(zap.String("project", project)),
	}

	var closers []io.Closer
	fail := func(err error) (*Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	driver := o.Storage
	if driver == nil {
		d, err := newStorage(ctx, o.Dir, cfg.Storage)
		if err != nil {
			return fail(fmt.Errorf("opening storage: %w", err))
		}
		driver = d
	}
	s, err := store.Open(ctx, driver, e.logger)
	if err != nil {
		_ = driver.Close()
		return fail(err)
	}
	closers = append(closers, s)
	e.store = s

	embedder := o.Embedder
	if embedder == nil {
		if embedder, err = newEmbedder(cfg.Embedding); err != nil {
			return fail(fmt.Errorf("creating embedder: %w", err))
		}
	}
	vectors := o.Vectors
	if vectors == nil {
		vectors = vectorFactory(o.Dir, *cfg, e.logger)
	}
	for _, name := range []string{index.Entities, index.Lore} {
		drv, err := vectors(ctx, name)
		if err != nil {
			return fail(fmt.Errorf("opening %s vector store: %w", name, err))
		}
		idx, err := index.New(index.Config{Name: name, Embedder: embedder, Driver: drv, Logger: e.logger})
		if err != nil {
			_ = drv.Close()
			return fail(err)
		}
		closers = append(closers, idx)
		if name == index.Entities {
			e.entities = idx
		} else {
			e.lore = idx
		}
	}

	e.generator = o.Generator
	if e.generator == nil {
		if e.generator, err = newGenerator(cfg.Generator, e.logger); err != nil {
			return fail(fmt.Errorf("creating generator: %w", err))
		}
	}
	e.counter = tokens.New(cfg.Generator.Model, e.logger)

	e.publisher = o.Publisher
	if e.publisher == nil {
		if e.publisher, err = newPublisher(cfg.Events, e.logger); err != nil {
			return fail(fmt.Errorf("creating event publisher: %w", err))
		}
	}
	closers = append(closers, e.publisher)

	e.recorder = metrics.NewRecorder(project)

	ckptDir, err := dotdir.NewManager().CheckpointDir(o.Dir)
	if err != nil {
		return fail(err)
	}
	e.checkpoints, err = checkpoint.New(checkpoint.Config{
		Store:   s,
		Indices: []*index.Index{e.entities, e.lore},
		Dir:     ckptDir,
		Logger:  e.logger,
	})
	if err != nil {
		return fail(err)
	}

	if err := e.rebuild(); err != nil {
		return fail(err)
	}

	e.logger.Info("project opened",
		zap.String("dir", o.Dir),
		zap.Int("tick", s.Tick()),
	)
	return e, nil
}

// rebuild recreates the option-dependent components. Callers hold mu, or
// have exclusive access during Open.
func (e *Engine) rebuild() error {
	opts := e.cfg.Engine

	assembler := recall.NewAssembler(recall.Config{
		Entities:        e.entities,
		Counter:         e.counter,
		MaxTokens:       opts.ContextMaxTokens,
		TopK:            opts.RetrievalTopK,
		TensionHistory:  opts.TensionHistory,
		TensionGuidance: opts.EnableTensionGuidance,
		Logger:          e.logger,
	})
	tracker := plot.New(plot.Config{
		Generator: e.generator,
		AllowSkip: opts.AllowBeatSkip,
		Logger:    e.logger,
	})
	detector := lore.NewDetector(lore.Config{
		Index:     e.lore,
		Threshold: &opts.ContradictionThreshold,
		Logger:    e.logger,
	})

	o, err := tick.New(tick.Config{
		Project:   e.project,
		Store:     e.store,
		Generator: e.generator,
		Assembler: assembler,
		Plot:      tracker,
		Detector:  detector,
		Entities:  e.entities,
		Lore:      e.lore,
		Publisher: e.publisher,
		Recorder:  e.recorder,
		Options:   tickOptions(opts),
		Logger:    e.logger,
	})
	if err != nil {
		return err
	}

	e.orchestrator = o
	e.plot.Store(tracker)
	e.opts.Store(&opts)
	return nil
}

func tickOptions(c config.EngineConfig) tick.Options {
	return tick.Options{
		UsePlotFirst:              c.UsePlotFirst,
		PlotBeatsAhead:            c.PlotBeatsAhead,
		PlotRegenerationThreshold: c.PlotRegenerationThreshold,
		VerifyBeatExecution:       c.VerifyBeatExecution,
		AllowBeatSkip:             c.AllowBeatSkip,
		FallbackToReactive:        c.FallbackToReactive,
		EnableLoreTracking:        c.EnableLoreTracking,
	}
}

// Tick runs one tick.
func (e *Engine) Tick(ctx context.Context) (*tick.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orchestrator.Run(ctx)
}

// SetOptions validates and applies new tick options. A running tick
// finishes with the old options.
func (e *Engine) SetOptions(opts config.EngineConfig) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.cfg.Engine
	e.cfg.Engine = opts
	if err := e.rebuild(); err != nil {
		e.cfg.Engine = prev
		return err
	}

	e.logger.Info("engine options updated")
	return nil
}

// Options returns the options the next tick runs with.
func (e *Engine) Options() config.EngineConfig {
	return *e.opts.Load()
}

// CreateCheckpoint snapshots the project at its current tick.
func (e *Engine) CreateCheckpoint(ctx context.Context, message string) (*world.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpoints.Create(ctx, e.store.Tick(), message)
}

// RestoreCheckpoint restores checkpoint id and returns the safety checkpoint
// taken just before.
func (e *Engine) RestoreCheckpoint(ctx context.Context, id string) (*world.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpoints.Restore(ctx, id)
}

// DeleteCheckpoint removes checkpoint id and its bundle.
func (e *Engine) DeleteCheckpoint(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpoints.Delete(ctx, id)
}

// Checkpoints lists checkpoints oldest first.
func (e *Engine) Checkpoints() []*world.Checkpoint {
	return e.checkpoints.List()
}

// Seed creates w in an empty project and indexes it.
func (e *Engine) Seed(ctx context.Context, w *seed.World) (*seed.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := seed.Apply(ctx, e.store, w)
	if err != nil {
		return nil, err
	}

	for _, id := range res.Created {
		ent, err := e.store.Get(id)
		if err != nil {
			return res, err
		}
		text, meta, ok := index.Document(ent)
		if !ok {
			continue
		}
		idx := e.entities
		if ent.Kind() == world.KindLore {
			idx = e.lore
		}
		if err := idx.Index(ctx, id, text, meta); err != nil {
			return res, fmt.Errorf("indexing seeded %s: %w", id, err)
		}
	}

	e.logger.Info("world seeded", zap.Int("entities", len(res.Created)))
	return res, nil
}

// Reader returns the committed world.
func (e *Engine) Reader() store.Reader {
	return e.store
}

// Search queries the named index.
func (e *Engine) Search(ctx context.Context, name, query string, topK int) ([]index.Hit, error) {
	switch name {
	case index.Entities, "":
		return e.entities.Search(ctx, query, topK, nil)
	case index.Lore:
		return e.lore.Search(ctx, query, topK, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, name)
	}
}

// PendingBeats lists pending beats in execution order.
func (e *Engine) PendingBeats() []*world.PlotBeat {
	return e.plot.Load().Pending(e.store)
}

// Status summarises the project.
func (e *Engine) Status() Status {
	return Status{
		Project:      e.project,
		Tick:         e.store.Tick(),
		Counts:       e.store.Counts(),
		PendingBeats: len(e.PendingBeats()),
		Options:      e.Options(),
	}
}

// Project returns the project name.
func (e *Engine) Project() string {
	return e.project
}

// Metrics returns the project's Prometheus recorder.
func (e *Engine) Metrics() *metrics.Recorder {
	return e.recorder
}

// Close waits for a running tick, then closes the publisher, both indices
// and the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return errors.Join(
		e.publisher.Close(),
		e.entities.Close(),
		e.lore.Close(),
		e.store.Close(),
	)
}
