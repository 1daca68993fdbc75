package tick_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/embeddings/hashing"
	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/lore"
	"github.com/papercomputeco/chronicle/pkg/recall"
	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/tick"
	testutils "github.com/papercomputeco/chronicle/pkg/utils/test"
	"github.com/papercomputeco/chronicle/pkg/world"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []*eventstream.TickCommittedEvent
	err    error
}

func (p *capturePublisher) PublishTick(_ context.Context, e *eventstream.TickCommittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type countingRecorder struct {
	completed, aborted, contradictions int
	fallbacks                          []tick.State
}

func (r *countingRecorder) TickCompleted(*tick.Result)    { r.completed++ }
func (r *countingRecorder) TickAborted(tick.State, error) { r.aborted++ }
func (r *countingRecorder) Fallback(s tick.State)         { r.fallbacks = append(r.fallbacks, s) }
func (r *countingRecorder) Contradictions(n int)          { r.contradictions += n }

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		s         *store.Store
		gen       *testutils.ScriptedGenerator
		entities  *index.Index
		entityVec *testutils.MockVectorDriver
		loreIdx   *index.Index
		loreEmb   *testutils.MockEmbedder
		publisher *capturePublisher
		recorder  *countingRecorder
		opts      tick.Options
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		s, err = store.Open(ctx, inmemory.NewDriver(), nil)
		Expect(err).NotTo(HaveOccurred())

		tx := s.Begin(0)
		harbor, err := tx.Create(&world.Location{Name: "The Harbor", Atmosphere: "salt and tar"})
		Expect(err).NotTo(HaveOccurred())
		_, err = tx.Create(&world.Location{Name: "The Lighthouse"})
		Expect(err).NotTo(HaveOccurred())
		_, err = tx.Create(&world.Character{FirstName: "Mira", FamilyName: "Vell", State: world.CharacterState{LocationID: harbor}})
		Expect(err).NotTo(HaveOccurred())
		_, err = tx.Create(&world.Character{FirstName: "Tomas", FamilyName: "Reed"})
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Update(harbor, world.Patch{"occupants": []string{"char_001"}})).To(Succeed())
		_, err = tx.CreateRelationship(&world.Relationship{SourceID: "char_001", TargetID: "char_002", Type: "rival", Strength: 0.2}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit(ctx)).To(Succeed())

		entityVec = testutils.NewMockVectorDriver()
		entities, err = index.New(index.Config{Name: index.Entities, Embedder: hashing.NewEmbedder(64), Driver: entityVec})
		Expect(err).NotTo(HaveOccurred())

		loreEmb = testutils.NewMockEmbedder()
		loreIdx, err = index.New(index.Config{Name: index.Lore, Embedder: loreEmb, Driver: testutils.NewMockVectorDriver()})
		Expect(err).NotTo(HaveOccurred())

		gen = testutils.NewScriptedGenerator()
		gen.Defaults[stage.Plan] = &stage.Response{Plan: &stage.PlanResult{Rationale: "quiet", SceneIntention: "Mira watches the boats"}}
		gen.Defaults[stage.Write] = &stage.Response{Prose: "Mira watched the boats come in. The tide was calm."}
		gen.Defaults[stage.Extract] = &stage.Response{}
		gen.Defaults[stage.Verify] = &stage.Response{Verdict: &stage.Verdict{Accomplished: true, Rationale: "it happened"}}
		gen.Defaults[stage.Outline] = &stage.Response{Beats: []stage.BeatDraft{
			{Description: "Mira finds the letter", RequiredCharacters: []string{"char_001"}, TensionTarget: 4},
			{Description: "Tomas confronts Mira", RequiredCharacters: []string{"char_002", "char_001"}, TensionTarget: 7},
		}}

		publisher = &capturePublisher{}
		recorder = &countingRecorder{}

		opts = tick.DefaultOptions()
		opts.UsePlotFirst = false
	})

	newOrchestrator := func() *tick.Orchestrator {
		o, err := tick.New(tick.Config{
			Project:   "harbor",
			Store:     s,
			Generator: gen,
			Assembler: recall.NewAssembler(recall.Config{Entities: entities, TensionGuidance: true}),
			Detector:  lore.NewDetector(lore.Config{Index: loreIdx}),
			Entities:  entities,
			Lore:      loreIdx,
			Publisher: publisher,
			Recorder:  recorder,
			Options:   opts,
		})
		Expect(err).NotTo(HaveOccurred())
		return o
	}

	countAll := func() map[world.Kind]int {
		return s.Counts()
	}

	Describe("a successful tick", func() {
		It("walks every state and commits the scene", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				Rationale:      "introduce a stranger",
				SceneIntention: "A stranger arrives at the harbor",
				POVCharacterID: "char_001",
				Actions: []stage.RawAction{
					stage.Action("character.generate", map[string]any{"first_name": "Oren", "family_name": "Hale", "location_id": "loc_001"}),
					stage.Action("location.generate", map[string]any{"name": "The Drowned Chapel"}),
				},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Trace).To(Equal([]tick.State{
				tick.StateRetrieve, tick.StatePlan, tick.StateValidate, tick.StateExecuteTools,
				tick.StateGenerate, tick.StateEvaluate, tick.StateCommit, tick.StateExtract,
				tick.StateLoreCheck, tick.StateBeatCheck, tick.StateDone,
			}))
			Expect(res.Tick).To(Equal(1))
			Expect(res.SceneID).To(Equal("scene_001"))
			Expect(res.Applied).To(HaveLen(2))
			Expect(res.Rejected).To(BeEmpty())
			Expect(res.StageErrors).To(BeEmpty())
			Expect(s.Tick()).To(Equal(1))

			oren, ok := s.CharacterByName("Oren Hale")
			Expect(ok).To(BeTrue())
			Expect(oren.CreatedTick).To(Equal(1))

			harbor, err := store.GetAs[*world.Location](s, "loc_001")
			Expect(err).NotTo(HaveOccurred())
			Expect(harbor.Occupants).To(ContainElement(oren.ID))

			scene, err := store.GetAs[*world.Scene](s, res.SceneID)
			Expect(err).NotTo(HaveOccurred())
			Expect(scene.POVCharacterID).To(Equal("char_001"))
			Expect(scene.Intention).To(Equal("A stranger arrives at the harbor"))
			Expect(scene.WordCount).To(Equal(res.WordCount))
			Expect(recorder.completed).To(Equal(1))
		})

		It("indexes new entities and the scene after commit", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "A stranger arrives",
				Actions:        []stage.RawAction{stage.Action("character.generate", map[string]any{"first_name": "Oren", "family_name": "Hale"})},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			entries, err := entities.Entries(ctx)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			oren, _ := s.CharacterByName("Oren Hale")
			Expect(ids).To(ContainElements(oren.ID, res.SceneID))
		})

		It("shows the writer display names only", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{SceneIntention: "Mira waits", POVCharacterID: "char_001"}})

			_, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			for _, req := range gen.Requests() {
				switch req.Stage {
				case stage.Plan:
					Expect(req.Context).To(ContainSubstring("Mira Vell"))
				case stage.Write:
					Expect(req.Context).NotTo(ContainSubstring("Mira Vell"))
					Expect(req.Context).NotTo(ContainSubstring("char_001"))
					Expect(req.Instructions).To(ContainSubstring("Mira's point of view"))
				}
			}
		})

		It("publishes a tick event", func() {
			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].SceneID).To(Equal(res.SceneID))
			Expect(publisher.events[0].Project).To(Equal("harbor"))
			Expect(res.EventID).To(Equal(publisher.events[0].EventID))
		})

		It("records a failed publish without losing the scene", func() {
			publisher.err = errors.New("broker down")

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Committed()).To(BeTrue())
			Expect(res.ErrorIn(tick.StateDone)).To(MatchError(ContainSubstring("broker down")))
			Expect(res.EventID).To(BeEmpty())
		})

		It("records index failures without losing the scene", func() {
			entityVec.FailAdd = true

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Committed()).To(BeTrue())
			Expect(res.ErrorIn(tick.StateCommit)).To(MatchError(ContainSubstring("indexing scene_001")))
		})
	})

	Describe("PLAN", func() {
		It("retries a malformed plan once", func() {
			gen.Respond(stage.Plan, &stage.Response{})
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{SceneIntention: "second try"}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.Calls(stage.Plan)).To(Equal(2))
			Expect(res.Fallbacks).To(BeEmpty())
			Expect(res.Intention).To(Equal("second try"))
		})

		It("falls back to reactive mode after two failures", func() {
			gen.Fail(stage.Plan, stage.ErrMalformed)
			gen.Fail(stage.Plan, stage.ErrMalformed)

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.Calls(stage.Plan)).To(Equal(2))
			Expect(res.FallbackStates()).To(ContainElement(string(tick.StatePlan)))
			Expect(res.Applied).To(BeEmpty())
			Expect(res.Committed()).To(BeTrue())
			Expect(recorder.fallbacks).To(ContainElement(tick.StatePlan))
		})

		It("aborts with a generation error when reactive fallback is off", func() {
			opts.FallbackToReactive = false
			gen.Fail(stage.Plan, errors.New("timeout"))
			gen.Fail(stage.Plan, errors.New("timeout"))
			before := countAll()

			res, err := newOrchestrator().Run(ctx)
			Expect(err).To(MatchError(stage.ErrGeneration))
			Expect(res.State()).To(Equal(tick.StatePlan))
			Expect(s.Tick()).To(Equal(0))
			Expect(countAll()).To(Equal(before))
			Expect(recorder.aborted).To(Equal(1))
		})
	})

	Describe("VALIDATE", func() {
		It("rejects unknown tools, dangling IDs and duplicate names", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "busy day",
				Actions: []stage.RawAction{
					stage.Action("character.teleport", map[string]any{"id": "char_001"}),
					stage.Action("character.move", map[string]any{"id": "char_009", "location_id": "loc_001"}),
					stage.Action("character.generate", map[string]any{"first_name": "mira", "family_name": "VELL"}),
					stage.Action("character.generate", map[string]any{"first_name": "Oren", "family_name": "Hale"}),
					stage.Action("character.generate", map[string]any{"first_name": "Oren", "family_name": "Hale"}),
					stage.Action("relationship.create", map[string]any{"source_id": "char_001", "target_id": "char_404", "type": "ally"}),
				},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Rejected).To(HaveLen(5))
			indexes := make([]int, 0, 5)
			for _, r := range res.Rejected {
				indexes = append(indexes, r.Index)
			}
			Expect(indexes).To(Equal([]int{0, 1, 2, 4, 5}))
			Expect(res.Rejected[0].Reason).To(ContainSubstring("unknown tool"))
			Expect(res.Rejected[2].Reason).To(ContainSubstring("duplicate"))

			Expect(res.Applied).To(HaveLen(1))
			Expect(store.ListAs[*world.Character](s, world.KindCharacter, nil)).To(HaveLen(3))
		})

		It("rejects character updates whose values have the wrong type", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "Mira takes a new name",
				Actions: []stage.RawAction{
					stage.Action("character.update", map[string]any{"id": "char_001", "fields": map[string]any{"nicknames": 5}}),
					stage.Action("character.update", map[string]any{"id": "char_001", "fields": map[string]any{"emotional": 42}}),
					stage.Action("character.update", map[string]any{"id": "char_001", "fields": map[string]any{"title": true}}),
					stage.Action("character.update", map[string]any{"id": "char_001", "fields": map[string]any{"nicknames": []any{"Gull"}}}),
				},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Committed()).To(BeTrue())

			Expect(res.Rejected).To(HaveLen(3))
			for i, r := range res.Rejected {
				Expect(r.Index).To(Equal(i))
				Expect(r.Tool).To(Equal("character.update"))
			}
			Expect(res.Applied).To(HaveLen(1))

			mira, err := store.GetAs[*world.Character](s, "char_001")
			Expect(err).NotTo(HaveOccurred())
			Expect(mira.Nicknames).To(Equal([]string{"Gull"}))
			Expect(mira.FirstName).To(Equal("Mira"))
		})

		It("checks renames against earlier updates in the same plan", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "Mira marries",
				Actions: []stage.RawAction{
					stage.Action("character.update", map[string]any{"id": "char_001", "fields": map[string]any{"first_name": "Tomas"}}),
					stage.Action("character.update", map[string]any{"id": "char_001", "fields": map[string]any{"family_name": "Reed"}}),
				},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rejected).To(HaveLen(1))
			Expect(res.Rejected[0].Index).To(Equal(1))
			Expect(res.Rejected[0].Reason).To(ContainSubstring("duplicate"))

			mira, _ := store.GetAs[*world.Character](s, "char_001")
			Expect(mira.FullName()).To(Equal("Tomas Vell"))
		})

		It("keeps the default point of view when the planner names an unknown one", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{SceneIntention: "x", POVCharacterID: "char_404"}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.POVCharacterID).To(Equal("char_001"))
			Expect(res.FallbackStates()).To(ContainElement(string(tick.StateValidate)))
		})
	})

	Describe("EXECUTE_TOOLS", func() {
		It("leaves nothing visible when the third of five actions fails", func() {
			DeferCleanup(tick.RegisterBrokenAction())
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "upheaval",
				Actions: []stage.RawAction{
					stage.Action("character.generate", map[string]any{"first_name": "Oren", "family_name": "Hale"}),
					stage.Action("location.generate", map[string]any{"name": "The Drowned Chapel"}),
					{Tool: string(tick.KindBroken)},
					stage.Action("character.move", map[string]any{"id": "char_002", "location_id": "loc_002"}),
					stage.Action("relationship.adjust", map[string]any{"id": "rel_001", "delta": 0.3}),
				},
			}})
			before, err := s.Export()
			Expect(err).NotTo(HaveOccurred())

			res, err := newOrchestrator().Run(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err).To(MatchError(ContainSubstring("action 3 of 5")))
			Expect(err).To(MatchError(tick.ErrBroken))
			Expect(res.State()).To(Equal(tick.StateExecuteTools))
			Expect(res.Applied).To(HaveLen(2))

			after, err := s.Export()
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			_, ok := s.CharacterByName("Oren Hale")
			Expect(ok).To(BeFalse())
			Expect(gen.Calls(stage.Write)).To(BeZero())

			entries, err := entities.Entries(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("moves characters between locations", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "Mira climbs to the light",
				Actions:        []stage.RawAction{stage.Action("character.move", map[string]any{"id": "char_001", "location_id": "loc_002"})},
			}})

			_, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			mira, err := store.GetAs[*world.Character](s, "char_001")
			Expect(err).NotTo(HaveOccurred())
			Expect(mira.State.LocationID).To(Equal("loc_002"))

			harbor, _ := store.GetAs[*world.Location](s, "loc_001")
			light, _ := store.GetAs[*world.Location](s, "loc_002")
			Expect(harbor.Occupants).NotTo(ContainElement("char_001"))
			Expect(light.Occupants).To(ContainElement("char_001"))
		})

		It("creates mirrored relationships and clamps adjustments", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "alliances shift",
				Actions: []stage.RawAction{
					stage.Action("relationship.adjust", map[string]any{"id": "rel_001", "delta": 5, "type": "friend"}),
					stage.Action("character.generate", map[string]any{"first_name": "Oren", "family_name": "Hale"}),
				},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			rel, err := store.GetAs[*world.Relationship](s, "rel_001")
			Expect(err).NotTo(HaveOccurred())
			Expect(rel.Strength).To(Equal(1.0))
			Expect(rel.Type).To(Equal("friend"))
			Expect(res.Applied[0].IDs).To(Equal([]string{"rel_001", "rel_002"}))

			inv, err := store.GetAs[*world.Relationship](s, "rel_002")
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.SourceID).To(Equal("char_002"))
			Expect(inv.Strength).To(Equal(1.0))
			Expect(inv.Type).To(Equal("friend"))

			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "a pact",
				Actions: []stage.RawAction{
					stage.Action("relationship.create", map[string]any{"source_id": "char_002", "target_id": "char_003", "type": "ally", "strength": 0.5}),
				},
			}})
			res, err = newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Applied).To(HaveLen(1))
			Expect(res.Applied[0].IDs).To(HaveLen(2))

			for _, id := range res.Applied[0].IDs {
				r, err := store.GetAs[*world.Relationship](s, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Type).To(Equal("ally"))
			}
		})
	})

	Describe("GENERATE_PROSE", func() {
		It("aborts and discards applied actions when prose fails twice", func() {
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "x",
				Actions:        []stage.RawAction{stage.Action("location.generate", map[string]any{"name": "The Drowned Chapel"})},
			}})
			gen.Respond(stage.Write, &stage.Response{Prose: "  "})
			gen.Fail(stage.Write, errors.New("overloaded"))

			res, err := newOrchestrator().Run(ctx)
			Expect(err).To(MatchError(stage.ErrGeneration))
			Expect(res.State()).To(Equal(tick.StateGenerate))
			Expect(gen.Calls(stage.Write)).To(Equal(2))
			Expect(store.ListAs[*world.Location](s, world.KindLocation, nil)).To(HaveLen(2))
			Expect(s.Tick()).To(Equal(0))
		})

		It("discards the buffer when cancelled before commit", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			gen.Hook = func(_ context.Context, req stage.Request) error {
				if req.Stage == stage.Write {
					cancel()
				}
				return nil
			}
			gen.Respond(stage.Plan, &stage.Response{Plan: &stage.PlanResult{
				SceneIntention: "x",
				Actions:        []stage.RawAction{stage.Action("location.generate", map[string]any{"name": "The Drowned Chapel"})},
			}})

			_, err := newOrchestrator().Run(cctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(store.ListAs[*world.Location](s, world.KindLocation, nil)).To(HaveLen(2))
			Expect(s.Tick()).To(Equal(0))
		})
	})

	Describe("EXTRACT and LORE_CHECK", func() {
		It("records extraction failure without failing the tick", func() {
			gen.Fail(stage.Extract, errors.New("bad json"))

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Committed()).To(BeTrue())
			Expect(res.ErrorIn(tick.StateExtract)).To(MatchError(tick.ErrExtraction))
			Expect(res.LoreIDs).To(BeEmpty())
		})

		It("saves extracted lore and links contradictions", func() {
			loreEmb.Set("Salt binds the tide", 1, 0)
			loreEmb.Set("The tide answers to no one", 0.6, 0.8)
			gen.Respond(stage.Extract, &stage.Response{Records: []stage.Record{
				{Content: "Salt binds the tide", Type: "rule", Category: "magic", Importance: "critical"},
				{Content: "The tide answers to no one", Type: "fact", Category: "magic"},
				{Content: "   "},
			}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.LoreIDs).To(Equal([]string{"lore_001", "lore_002"}))
			Expect(res.Contradictions).To(HaveLen(1))
			Expect(recorder.contradictions).To(Equal(1))

			first, err := store.GetAs[*world.LoreItem](s, "lore_001")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Contradicts).To(Equal([]string{"lore_002"}))
			Expect(first.SourceSceneID).To(Equal(res.SceneID))
			Expect(first.Importance).To(Equal(world.ImportanceCritical))

			second, _ := store.GetAs[*world.LoreItem](s, "lore_002")
			Expect(second.Contradicts).To(Equal([]string{"lore_001"}))
		})

		It("skips extraction and records it when lore tracking is off", func() {
			opts.EnableLoreTracking = false

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.Calls(stage.Extract)).To(BeZero())
			Expect(res.FallbackStates()).To(ContainElement(string(tick.StateLoreCheck)))
		})
	})

	Describe("plot-first ticks", func() {
		BeforeEach(func() {
			opts.UsePlotFirst = true
			opts.PlotRegenerationThreshold = 1

			tx := s.Begin(0)
			_, err := tx.Create(&world.PlotBeat{
				Description:        "Tomas finds the letter",
				RequiredCharacters: []string{"char_002"},
				TensionTarget:      5,
				Status:             world.BeatPending,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(tx.Commit(ctx)).To(Succeed())
		})

		beat := func() *world.PlotBeat {
			b, err := store.GetAs[*world.PlotBeat](s, "beat_001")
			Expect(err).NotTo(HaveOccurred())
			return b
		}

		It("targets the pending beat and completes it when verified", func() {
			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(gen.Calls(stage.Outline)).To(BeZero())
			Expect(res.POVCharacterID).To(Equal("char_002"))
			Expect(res.Beat).NotTo(BeNil())
			Expect(res.Beat.Status).To(Equal(world.BeatCompleted))
			Expect(res.Beat.Verified).To(BeTrue())

			b := beat()
			Expect(b.Status).To(Equal(world.BeatCompleted))
			Expect(b.ExecutedInScene).To(Equal(res.SceneID))

			scene, _ := store.GetAs[*world.Scene](s, res.SceneID)
			Expect(scene.BeatID).To(Equal("beat_001"))
			Expect(publisher.events[0].BeatID).To(Equal("beat_001"))
		})

		It("puts the beat in the writer instructions as a constraint", func() {
			_, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			for _, req := range gen.Requests() {
				if req.Stage == stage.Write {
					Expect(req.Instructions).To(ContainSubstring("hard constraint"))
					Expect(req.Instructions).To(ContainSubstring("Tomas finds the letter"))
				}
			}
		})

		It("auto-completes and records it when verification is disabled", func() {
			opts.VerifyBeatExecution = false

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.Calls(stage.Verify)).To(BeZero())
			Expect(res.Beat.Status).To(Equal(world.BeatCompleted))
			Expect(res.FallbackStates()).To(ContainElement(string(tick.StateBeatCheck)))
		})

		It("leaves an unaccomplished beat pending", func() {
			gen.Respond(stage.Verify, &stage.Response{Verdict: &stage.Verdict{Accomplished: false, Rationale: "no letter"}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Beat.Status).To(Equal(world.BeatPending))
			Expect(beat().Status).To(Equal(world.BeatPending))
		})

		It("skips an unaccomplished beat when skipping is allowed", func() {
			opts.AllowBeatSkip = true
			gen.Respond(stage.Verify, &stage.Response{Verdict: &stage.Verdict{Accomplished: false, Rationale: "no letter"}})

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Beat.Status).To(Equal(world.BeatSkipped))
			Expect(beat().Status).To(Equal(world.BeatSkipped))
			Expect(beat().ExecutedInScene).To(BeEmpty())
		})

		It("treats a failed verification as not verified", func() {
			gen.Fail(stage.Verify, errors.New("timeout"))

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ErrorIn(tick.StateBeatCheck)).To(MatchError(tick.ErrVerification))
			Expect(res.Beat.Status).To(Equal(world.BeatPending))
			Expect(res.FallbackStates()).To(ContainElement(string(tick.StateBeatCheck)))
		})

		It("generates beats when the backlog runs low", func() {
			opts.PlotRegenerationThreshold = 3
			opts.PlotBeatsAhead = 2

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.Calls(stage.Outline)).To(Equal(1))
			Expect(res.GeneratedBeats).To(Equal([]string{"beat_002", "beat_003"}))
			Expect(res.Beat.BeatID).To(Equal("beat_001"))
		})

		It("discards generated beats when the tick aborts", func() {
			opts.PlotRegenerationThreshold = 3
			opts.FallbackToReactive = false
			gen.Fail(stage.Plan, errors.New("timeout"))
			gen.Fail(stage.Plan, errors.New("timeout"))
			before, err := s.Export()
			Expect(err).NotTo(HaveOccurred())

			res, err := newOrchestrator().Run(ctx)
			Expect(err).To(MatchError(stage.ErrGeneration))
			Expect(gen.Calls(stage.Outline)).To(Equal(1))
			Expect(res.GeneratedBeats).To(BeEmpty())

			after, err := s.Export()
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
			Expect(store.ListAs[*world.PlotBeat](s, world.KindBeat, nil)).To(HaveLen(1))

			entries, err := entities.Entries(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("stamps generated beats with the tick that created them", func() {
			opts.PlotRegenerationThreshold = 3
			opts.PlotBeatsAhead = 2

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			for _, id := range res.GeneratedBeats {
				b, err := store.GetAs[*world.PlotBeat](s, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(b.CreatedTick).To(Equal(res.Tick))
			}
			entries, err := entities.Entries(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(ContainElement(HaveField("ID", "beat_002")))
		})

		It("continues when beat generation fails", func() {
			opts.PlotRegenerationThreshold = 3
			gen.Fail(stage.Outline, errors.New("offline"))

			res, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ErrorIn(tick.StateRetrieve)).To(MatchError(ContainSubstring("offline")))
			Expect(res.Committed()).To(BeTrue())
		})
	})
})
