// Package tick drives one narrative tick through its state machine:
// RETRIEVE, PLAN, VALIDATE, EXECUTE_TOOLS, GENERATE_PROSE, EVALUATE, COMMIT,
// EXTRACT, LORE_CHECK, BEAT_CHECK and DONE.
//
// Everything before COMMIT is staged in one store transaction which is
// discarded if any of those states fail, so an aborted tick leaves the world
// untouched. States after COMMIT run in their own transactions and their
// failures are recorded on the Result instead of failing the tick.
package tick

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/lore"
	"github.com/papercomputeco/chronicle/pkg/plot"
	"github.com/papercomputeco/chronicle/pkg/recall"
	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var (
	// ErrExtraction wraps a failed EXTRACT stage. It never fails a tick.
	ErrExtraction = errors.New("lore extraction failed")

	// ErrVerification wraps a failed beat verification. The beat is treated
	// as not accomplished.
	ErrVerification = errors.New("beat verification failed")
)

// generationAttempts is how many times PLAN and GENERATE_PROSE call the
// generator before giving up.
const generationAttempts = 2

// Indexer is the part of index.Index the orchestrator writes to.
type Indexer interface {
	Index(ctx context.Context, id, text string, metadata map[string]string) error
	Remove(ctx context.Context, ids ...string) error
}

// Options are the behavioural switches of a tick.
type Options struct {
	UsePlotFirst              bool
	PlotBeatsAhead            int
	PlotRegenerationThreshold int
	VerifyBeatExecution       bool
	AllowBeatSkip             bool
	FallbackToReactive        bool
	EnableLoreTracking        bool
}

// DefaultOptions returns the options a new project starts with.
func DefaultOptions() Options {
	return Options{
		UsePlotFirst:              true,
		PlotBeatsAhead:            3,
		PlotRegenerationThreshold: 2,
		VerifyBeatExecution:       true,
		AllowBeatSkip:             false,
		FallbackToReactive:        true,
		EnableLoreTracking:        true,
	}
}

// Config wires an Orchestrator.
type Config struct {
	// Project names the project in published events.
	Project string

	Store     *store.Store
	Generator stage.Generator
	Assembler *recall.Assembler

	// Plot defaults to a tracker over Generator honouring AllowBeatSkip.
	Plot *plot.Tracker

	// Detector links contradicting lore. When nil, extracted lore is saved
	// and indexed into Lore without a contradiction check.
	Detector *lore.Detector

	// Entities receives committed characters, locations, relationships,
	// beats and scenes. Lore receives lore items when Detector is nil.
	Entities Indexer
	Lore     Indexer

	Publisher eventstream.Publisher
	Recorder  Recorder

	Options Options
	Logger  *zap.Logger
}

// Orchestrator runs ticks. It is not safe for concurrent use: callers
// serialise ticks per project.
type Orchestrator struct {
	project   string
	store     *store.Store
	generator stage.Generator
	assembler *recall.Assembler
	plot      *plot.Tracker
	detector  *lore.Detector
	entities  Indexer
	lore      Indexer
	publisher eventstream.Publisher
	recorder  Recorder
	opts      Options
	logger    *zap.Logger
}

// New creates an Orchestrator.
func New(c Config) (*Orchestrator, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("tick orchestrator needs a store")
	case c.Generator == nil:
		return nil, errors.New("tick orchestrator needs a generator")
	case c.Assembler == nil:
		return nil, errors.New("tick orchestrator needs a context assembler")
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Plot == nil {
		c.Plot = plot.New(plot.Config{
			Generator: c.Generator,
			AllowSkip: c.Options.AllowBeatSkip,
			Logger:    c.Logger,
		})
	}
	if c.Options.PlotBeatsAhead <= 0 {
		c.Options.PlotBeatsAhead = DefaultOptions().PlotBeatsAhead
	}

	return &Orchestrator{
		project:   c.Project,
		store:     c.Store,
		generator: c.Generator,
		assembler: c.Assembler,
		plot:      c.Plot,
		detector:  c.Detector,
		entities:  c.Entities,
		lore:      c.Lore,
		publisher: c.Publisher,
		recorder:  c.Recorder,
		opts:      c.Options,
		logger:    c.Logger,
	}, nil
}

// run is the working state of one tick.
type run struct {
	res *Result

	beat     *world.PlotBeat
	pov      string
	packet   *recall.Packet
	plan     *stage.PlanResult
	accepted []Action
	tx       *store.Tx
	prose    string
	records  []stage.Record
}

type step struct {
	state State
	fn    func(context.Context, *run) error
}

// Run executes one tick. On error the returned Result still describes how
// far the tick got; nothing was committed.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	t := &run{res: &Result{Tick: o.store.Tick() + 1}}

	steps := []step{
		{StateRetrieve, o.retrieve},
		{StatePlan, o.planScene},
		{StateValidate, o.validate},
		{StateExecuteTools, o.execute},
		{StateGenerate, o.write},
		{StateEvaluate, o.evaluate},
		{StateCommit, o.commit},
		{StateExtract, o.extract},
		{StateLoreCheck, o.checkLore},
		{StateBeatCheck, o.checkBeat},
		{StateDone, o.publish},
	}

	for _, s := range steps {
		t.res.enter(s.state)

		var err error
		if !t.res.Committed() {
			err = ctx.Err()
		}
		if err == nil {
			err = s.fn(ctx, t)
		}
		if err != nil {
			if t.tx != nil && !t.res.Committed() {
				t.tx.Discard()
				t.res.GeneratedBeats = nil
			}
			t.res.Duration = time.Since(started)
			o.recorder.TickAborted(s.state, err)
			o.logger.Warn("tick aborted",
				zap.Int("tick", t.res.Tick),
				zap.String("state", string(s.state)),
				zap.Error(err),
			)
			return t.res, fmt.Errorf("tick %d aborted in %s: %w", t.res.Tick, s.state, err)
		}
	}

	t.res.Duration = time.Since(started)
	o.recorder.TickCompleted(t.res)
	o.logger.Info("tick completed",
		zap.Int("tick", t.res.Tick),
		zap.String("scene_id", t.res.SceneID),
		zap.Int("tension", t.res.Tension),
		zap.Int("fallbacks", len(t.res.Fallbacks)),
		zap.Int("stage_errors", len(t.res.StageErrors)),
		zap.Duration("duration", t.res.Duration),
	)
	return t.res, nil
}

func (o *Orchestrator) fallback(t *run, s State, reason string) {
	t.res.Fallbacks = append(t.res.Fallbacks, Fallback{State: s, Reason: reason})
	o.recorder.Fallback(s)
	o.logger.Warn("tick fallback",
		zap.Int("tick", t.res.Tick),
		zap.String("state", string(s)),
		zap.String("reason", reason),
	)
}

func (o *Orchestrator) stageFailed(t *run, s State, err error) {
	t.res.fail(s, err)
	o.logger.Warn("tick stage failed",
		zap.Int("tick", t.res.Tick),
		zap.String("state", string(s)),
		zap.Error(err),
	)
}

// retrieve opens the tick's transaction, tops up the beat backlog when it
// runs low, picks the beat and point of view, and assembles the planning
// context.
func (o *Orchestrator) retrieve(ctx context.Context, t *run) error {
	t.tx = o.store.Begin(t.res.Tick)

	if o.opts.UsePlotFirst {
		if pending := o.plot.Pending(t.tx); len(pending) < o.opts.PlotRegenerationThreshold {
			o.replenish(ctx, t)
		}
		t.beat = o.plot.NextPending(t.tx)
	}

	t.pov = o.defaultPOV(t.beat)

	packet, err := o.assembler.Assemble(ctx, t.tx, recall.Request{
		Tick:           t.res.Tick,
		POVCharacterID: t.pov,
		PendingBeat:    t.beat,
	})
	if err != nil {
		return fmt.Errorf("assembling context: %w", err)
	}
	t.packet = packet

	if packet.Degraded {
		t.res.Degraded = true
		o.fallback(t, StateRetrieve, "entity retrieval unavailable, planning without retrieved entities: "+packet.Reason)
	}
	return nil
}

// replenish stages new beats in the tick's transaction, so they commit with
// the scene or not at all. Failure is recorded and the tick continues with
// whatever backlog exists.
func (o *Orchestrator) replenish(ctx context.Context, t *run) {
	base, err := o.assembler.Assemble(ctx, t.tx, recall.Request{Tick: t.res.Tick})
	if err != nil {
		base = nil
	}

	ids, err := o.plot.GenerateNext(ctx, t.tx, base, o.opts.PlotBeatsAhead)
	if err != nil {
		o.stageFailed(t, StateRetrieve, fmt.Errorf("generating plot beats: %w", err))
		return
	}
	t.res.GeneratedBeats = ids
}

// defaultPOV prefers the beat's first required character, then the last
// scene's point of view, then the earliest character.
func (o *Orchestrator) defaultPOV(beat *world.PlotBeat) string {
	if beat != nil {
		for _, id := range beat.RequiredCharacters {
			if _, err := store.GetAs[*world.Character](o.store, id); err == nil {
				return id
			}
		}
	}
	if last := store.RecentScenes(o.store, 1); len(last) == 1 && last[0].POVCharacterID != "" {
		if _, err := store.GetAs[*world.Character](o.store, last[0].POVCharacterID); err == nil {
			return last[0].POVCharacterID
		}
	}
	if cs := store.ListAs[*world.Character](o.store, world.KindCharacter, nil); len(cs) > 0 {
		return cs[0].ID
	}
	return ""
}

func (o *Orchestrator) planScene(ctx context.Context, t *run) error {
	req := stage.Request{
		Stage:        stage.Plan,
		Context:      t.packet.Render(world.AudiencePlanning),
		Instructions: o.planInstructions(t),
	}

	var lastErr error
	for attempt := 1; attempt <= generationAttempts; attempt++ {
		resp, err := o.generator.Generate(ctx, req)
		if err == nil {
			err = checkPlan(resp)
		}
		if err == nil {
			t.plan = resp.Plan
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		o.logger.Debug("plan attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	if !errors.Is(lastErr, stage.ErrGeneration) {
		lastErr = fmt.Errorf("%w: %w", stage.ErrGeneration, lastErr)
	}
	if !o.opts.FallbackToReactive {
		return fmt.Errorf("planning: %w", lastErr)
	}

	t.plan = o.reactivePlan(t)
	o.fallback(t, StatePlan, "planner failed twice, continuing in reactive mode: "+lastErr.Error())
	return nil
}

func checkPlan(resp *stage.Response) error {
	if resp == nil || resp.Plan == nil {
		return fmt.Errorf("%w: response carries no plan", stage.ErrMalformed)
	}
	if strings.TrimSpace(resp.Plan.SceneIntention) == "" {
		return fmt.Errorf("%w: plan has no scene intention", stage.ErrMalformed)
	}
	return nil
}

func (o *Orchestrator) planInstructions(t *run) string {
	kinds := SupportedActions()
	tools := make([]string, len(kinds))
	for i, k := range kinds {
		tools[i] = string(k)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan scene %d. Reference existing entities by ID. Available tools: %s.",
		t.res.Tick, strings.Join(tools, ", "))
	if t.beat != nil {
		fmt.Fprintf(&b, " The scene must accomplish the pending beat %s.", t.beat.ID)
	}
	return b.String()
}

// reactivePlan continues the story without world changes.
func (o *Orchestrator) reactivePlan(t *run) *stage.PlanResult {
	intention := "Continue the story from where the previous scene left off."
	if t.beat != nil {
		intention = t.beat.Description
	} else if last := store.RecentScenes(o.store, 1); len(last) == 1 && last[0].Intention != "" {
		intention = "Follow up on: " + last[0].Intention
	}
	return &stage.PlanResult{
		Rationale:      "reactive fallback",
		SceneIntention: intention,
		POVCharacterID: t.pov,
	}
}

// validate decodes and checks every planned action against the committed
// world. Rejected actions are listed on the result and dropped.
func (o *Orchestrator) validate(_ context.Context, t *run) error {
	v := newValidation(o.store)
	for i, raw := range t.plan.Actions {
		a, err := Decode(raw)
		if err == nil {
			err = a.validate(v)
		}
		if err != nil {
			t.res.Rejected = append(t.res.Rejected, Rejection{Index: i, Tool: raw.Tool, Reason: err.Error()})
			o.logger.Info("rejected planned action",
				zap.Int("tick", t.res.Tick),
				zap.String("tool", raw.Tool),
				zap.Error(err),
			)
			continue
		}
		t.accepted = append(t.accepted, a)
	}

	if pov := strings.TrimSpace(t.plan.POVCharacterID); pov != "" && pov != t.pov {
		if _, err := store.GetAs[*world.Character](o.store, pov); err == nil {
			t.pov = pov
		} else {
			o.fallback(t, StateValidate, fmt.Sprintf("planner chose unknown point of view %q, keeping %q", pov, t.pov))
		}
	}
	return nil
}

// execute stages every accepted action in the transaction opened by
// retrieve. Any failure aborts the tick and the transaction is discarded with
// everything staged so far, generated beats included.
func (o *Orchestrator) execute(ctx context.Context, t *run) error {
	for i, a := range t.accepted {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := a.apply(t.tx)
		if err != nil {
			return fmt.Errorf("applying %s (action %d of %d): %w", a.Kind(), i+1, len(t.accepted), err)
		}
		t.res.Applied = append(t.res.Applied, Applied{Kind: a.Kind(), IDs: ids})
	}
	return nil
}

func (o *Orchestrator) write(ctx context.Context, t *run) error {
	t.res.POVCharacterID = t.pov
	t.res.Intention = t.plan.SceneIntention

	packet, err := o.assembler.Assemble(ctx, t.tx, recall.Request{
		Tick:           t.res.Tick,
		POVCharacterID: t.pov,
		Intention:      t.plan.SceneIntention,
		PendingBeat:    t.beat,
	})
	if err != nil {
		return fmt.Errorf("assembling writer context: %w", err)
	}
	if packet.Degraded && !t.res.Degraded {
		t.res.Degraded = true
		o.fallback(t, StateGenerate, "entity retrieval unavailable, writing without retrieved entities: "+packet.Reason)
	}

	req := stage.Request{
		Stage:        stage.Write,
		Context:      packet.Render(world.AudienceProse) + describeChanges(t.tx, t.res.Applied),
		Instructions: writerInstructions(packet),
	}

	var lastErr error
	for attempt := 1; attempt <= generationAttempts; attempt++ {
		resp, err := o.generator.Generate(ctx, req)
		if err == nil && (resp == nil || strings.TrimSpace(resp.Prose) == "") {
			err = fmt.Errorf("%w: empty prose", stage.ErrMalformed)
		}
		if err == nil {
			t.prose = strings.TrimSpace(resp.Prose)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		o.logger.Debug("prose attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	if !errors.Is(lastErr, stage.ErrGeneration) {
		lastErr = fmt.Errorf("%w: %w", stage.ErrGeneration, lastErr)
	}
	return fmt.Errorf("generating prose: %w", lastErr)
}

func writerInstructions(p *recall.Packet) string {
	var b strings.Builder
	b.WriteString("Write the next scene as prose")
	if p.POV != nil {
		fmt.Fprintf(&b, " from %s's point of view", p.POV.DisplayName)
	}
	b.WriteString(".")
	if p.Beat != nil {
		b.WriteString(" The scene must accomplish this beat; it is a hard constraint:\n")
		b.WriteString(p.DescribeBeat(world.AudienceProse))
	}
	return b.String()
}

// describeChanges tells the writer what the plan changed, by display name.
func describeChanges(r store.Reader, applied []Applied) string {
	if len(applied) == 0 {
		return ""
	}

	name := func(id string) string {
		e, err := r.Get(id)
		if err != nil {
			return id
		}
		switch v := e.(type) {
		case *world.Character:
			return v.DisplayName()
		case *world.Location:
			return v.Name
		}
		return id
	}

	var b strings.Builder
	b.WriteString("\n## What changes in this scene\n")
	for _, a := range applied {
		if len(a.IDs) == 0 {
			continue
		}
		id := a.IDs[0]
		switch a.Kind {
		case KindGenerateCharacter:
			fmt.Fprintf(&b, "- A new character appears: %s\n", name(id))
		case KindGenerateLocation:
			fmt.Fprintf(&b, "- A new place: %s\n", name(id))
		case KindMoveCharacter:
			if len(a.IDs) > 1 {
				fmt.Fprintf(&b, "- %s goes to %s\n", name(id), name(a.IDs[1]))
			}
		case KindUpdateCharacter:
			fmt.Fprintf(&b, "- %s changes\n", name(id))
		case KindCreateRelationship, KindAdjustRelationship:
			if rel, err := store.GetAs[*world.Relationship](r, id); err == nil {
				fmt.Fprintf(&b, "- %s and %s: %s\n", name(rel.SourceID), name(rel.TargetID), rel.Type)
			}
		}
	}
	return b.String()
}

func (o *Orchestrator) evaluate(_ context.Context, t *run) error {
	t.res.Tension = Tension(t.prose)
	t.res.Quality, t.res.WordCount = Measure(t.prose)
	return nil
}

// commit persists the staged world changes and the scene as one batch. The
// commit itself ignores cancellation.
func (o *Orchestrator) commit(ctx context.Context, t *run) error {
	scene := &world.Scene{
		Tick:           t.res.Tick,
		POVCharacterID: t.pov,
		Text:           t.prose,
		WordCount:      t.res.WordCount,
		Intention:      t.plan.SceneIntention,
		PlanRationale:  t.plan.Rationale,
		Tension:        t.res.Tension,
		Quality:        t.res.Quality,
	}
	if t.beat != nil {
		scene.BeatID = t.beat.ID
	}

	sceneID, err := t.tx.Create(scene)
	if err != nil {
		return fmt.Errorf("creating scene: %w", err)
	}
	t.tx.AdvanceTick(t.res.Tick)

	touched := t.tx.Touched()
	ctx = context.WithoutCancel(ctx)
	if err := t.tx.Commit(ctx); err != nil {
		return err
	}
	t.res.SceneID = sceneID

	o.index(ctx, t, StateCommit, touched)
	return nil
}

// index upserts committed entities into the entity index. Failures leave the
// index trailing the store and are recorded against s.
func (o *Orchestrator) index(ctx context.Context, t *run, s State, ids []string) {
	if o.entities == nil {
		return
	}
	for _, id := range ids {
		e, err := o.store.Get(id)
		if err != nil || e.Kind() == world.KindLore {
			continue
		}
		text, meta, ok := index.Document(e)
		if !ok {
			continue
		}
		if err := o.entities.Index(ctx, id, text, meta); err != nil {
			o.stageFailed(t, s, fmt.Errorf("indexing %s: %w", id, err))
		}
	}
}

func (o *Orchestrator) extract(ctx context.Context, t *run) error {
	if !o.opts.EnableLoreTracking {
		return nil
	}

	resp, err := o.generator.Generate(ctx, stage.Request{
		Stage:        stage.Extract,
		Context:      t.prose,
		Instructions: "List the world facts, rules, constraints, capabilities and limitations this scene establishes.",
	})
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty extraction response", stage.ErrMalformed)
	}
	if err != nil {
		o.stageFailed(t, StateExtract, fmt.Errorf("%w: %w", ErrExtraction, err))
		return nil
	}

	for _, r := range resp.Records {
		if strings.TrimSpace(r.Content) != "" {
			t.records = append(t.records, r)
		}
	}
	return nil
}

// checkLore saves each extracted record as a lore item in its own
// transaction and links it with the lore it contradicts.
func (o *Orchestrator) checkLore(ctx context.Context, t *run) error {
	if !o.opts.EnableLoreTracking {
		o.fallback(t, StateLoreCheck, "lore tracking disabled, extraction and contradiction check skipped")
		return nil
	}
	if o.detector == nil && len(t.records) > 0 {
		o.fallback(t, StateLoreCheck, "no contradiction detector configured, lore saved unchecked")
	}

	for _, r := range t.records {
		id, links, err := o.saveLore(ctx, t, r)
		if err != nil {
			o.stageFailed(t, StateLoreCheck, err)
			continue
		}
		t.res.LoreIDs = append(t.res.LoreIDs, id)
		t.res.Contradictions = append(t.res.Contradictions, links...)
	}

	if n := len(t.res.Contradictions); n > 0 {
		o.recorder.Contradictions(n)
	}
	return nil
}

func (o *Orchestrator) saveLore(ctx context.Context, t *run, r stage.Record) (string, []lore.Link, error) {
	tx := o.store.Begin(t.res.Tick)
	defer tx.Discard()

	id, err := tx.Create(&world.LoreItem{
		Content:       strings.TrimSpace(r.Content),
		Type:          world.ParseLoreType(r.Type),
		Category:      world.ParseLoreCategory(r.Category),
		Importance:    world.ParseImportance(r.Importance),
		SourceSceneID: t.res.SceneID,
	})
	if err != nil {
		return "", nil, fmt.Errorf("saving lore: %w", err)
	}
	item, err := store.GetAs[*world.LoreItem](tx, id)
	if err != nil {
		return "", nil, err
	}

	var links []lore.Link
	switch {
	case o.detector != nil:
		links, err = o.detector.Check(ctx, tx, item)
		if err != nil {
			o.stageFailed(t, StateLoreCheck, fmt.Errorf("checking %s: %w", id, err))
			o.fallback(t, StateLoreCheck, "contradiction check failed for "+id)
		}
	case o.lore != nil:
		text, meta, _ := index.Document(item)
		if err := o.lore.Index(ctx, id, text, meta); err != nil {
			o.stageFailed(t, StateLoreCheck, fmt.Errorf("indexing %s: %w", id, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if o.lore != nil {
			if rmErr := o.lore.Remove(context.WithoutCancel(ctx), id); rmErr != nil {
				o.logger.Warn("removing uncommitted lore from index", zap.String("lore_id", id), zap.Error(rmErr))
			}
		}
		return "", nil, fmt.Errorf("committing %s: %w", id, err)
	}
	return id, links, nil
}

// checkBeat settles the targeted beat: completed when verified or when
// verification is off, skipped when allowed, otherwise left pending.
func (o *Orchestrator) checkBeat(ctx context.Context, t *run) error {
	if !o.opts.UsePlotFirst || t.beat == nil {
		return nil
	}

	out := &BeatOutcome{BeatID: t.beat.ID, Status: world.BeatPending}
	t.res.Beat = out

	complete := false
	if o.opts.VerifyBeatExecution {
		verdict, err := o.verify(ctx, t)
		if err != nil {
			o.stageFailed(t, StateBeatCheck, fmt.Errorf("%w: %w", ErrVerification, err))
			o.fallback(t, StateBeatCheck, "verification failed, beat treated as not accomplished")
		} else {
			out.Verified = verdict.Accomplished
			out.Rationale = verdict.Rationale
			complete = verdict.Accomplished
		}
	} else {
		complete = true
		o.fallback(t, StateBeatCheck, "verification disabled, beat auto-completed")
	}

	tx := o.store.Begin(t.res.Tick)
	defer tx.Discard()

	var (
		err    error
		status world.BeatStatus
	)
	switch {
	case complete:
		status = world.BeatCompleted
		err = o.plot.MarkComplete(tx, t.beat.ID, t.res.SceneID, out.Rationale)
	case o.opts.AllowBeatSkip:
		status = world.BeatSkipped
		reason := "not accomplished in " + t.res.SceneID
		if out.Rationale != "" {
			reason += ": " + out.Rationale
		}
		err = o.plot.MarkSkipped(tx, t.beat.ID, reason)
	default:
		return nil
	}
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		o.stageFailed(t, StateBeatCheck, fmt.Errorf("settling beat %s: %w", t.beat.ID, err))
		return nil
	}

	out.Status = status
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, t *run) (*stage.Verdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## Beat\n%s\n\n## Scene\n%s\n", t.packet.DescribeBeat(world.AudiencePlanning), t.prose)

	resp, err := o.generator.Generate(ctx, stage.Request{
		Stage:        stage.Verify,
		Context:      b.String(),
		Instructions: "Did the scene accomplish the beat?",
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Verdict == nil {
		return nil, fmt.Errorf("%w: response carries no verdict", stage.ErrMalformed)
	}
	return resp.Verdict, nil
}

// publish emits the tick event. A failed publish never affects the
// committed scene.
func (o *Orchestrator) publish(ctx context.Context, t *run) error {
	if o.publisher == nil {
		return nil
	}

	event := eventstream.NewTickCommittedEvent(o.project, t.res.Tick, t.res.SceneID)
	event.Fallbacks = t.res.FallbackStates()
	event.LoreIDs = t.res.LoreIDs
	if t.beat != nil {
		event.BeatID = t.beat.ID
	}

	if err := o.publisher.PublishTick(ctx, event); err != nil {
		o.stageFailed(t, StateDone, fmt.Errorf("publishing tick event: %w", err))
		return nil
	}
	t.res.EventID = event.EventID
	return nil
}
