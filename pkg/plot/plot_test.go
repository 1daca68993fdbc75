package plot_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/plot"
	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/store"
	testutils "github.com/papercomputeco/chronicle/pkg/utils/test"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var _ = Describe("Tracker", func() {
	var (
		ctx       context.Context
		s         *store.Store
		generator *testutils.ScriptedGenerator
		tracker   *plot.Tracker
		sceneID   string
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		s, err = store.Open(ctx, inmemory.NewDriver(), nil)
		Expect(err).NotTo(HaveOccurred())

		tx := s.Begin(0)
		_, err = tx.Create(&world.Character{FirstName: "Mira", FamilyName: "Vell"})
		Expect(err).NotTo(HaveOccurred())
		_, err = tx.Create(&world.Location{Name: "The Lighthouse"})
		Expect(err).NotTo(HaveOccurred())
		sceneID, err = tx.Create(&world.Scene{Tick: 1, Text: "The lamp guttered."})
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit(ctx)).To(Succeed())

		generator = testutils.NewScriptedGenerator()
		tracker = plot.New(plot.Config{Generator: generator})
	})

	generate := func(drafts ...stage.BeatDraft) []string {
		generator.Respond(stage.Outline, &stage.Response{Beats: drafts})
		tx := s.Begin(1)
		ids, err := tracker.GenerateNext(ctx, tx, nil, len(drafts))
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit(ctx)).To(Succeed())
		return ids
	}

	Describe("GenerateNext", func() {
		It("appends pending beats in order", func() {
			ids := generate(
				stage.BeatDraft{Description: "Mira finds the letter", RequiredCharacters: []string{"char_001"}, RequiredLocation: "loc_001", TensionTarget: 4},
				stage.BeatDraft{Description: "The storm breaks", TensionTarget: 8},
			)
			Expect(ids).To(Equal([]string{"beat_001", "beat_002"}))

			pending := tracker.Pending(s)
			Expect(pending).To(HaveLen(2))
			Expect(pending[0].RequiredCharacters).To(Equal([]string{"char_001"}))
			Expect(pending[0].RequiredLocation).To(Equal("loc_001"))
			Expect(pending[1].Status).To(Equal(world.BeatPending))
		})

		It("drops references to unknown characters and locations", func() {
			generate(stage.BeatDraft{Description: "A stranger arrives", RequiredCharacters: []string{"char_001", "char_404", "loc_001"}, RequiredLocation: "loc_404"})

			beat := tracker.NextPending(s)
			Expect(beat.RequiredCharacters).To(Equal([]string{"char_001"}))
			Expect(beat.RequiredLocation).To(BeEmpty())
		})

		It("creates at most count beats", func() {
			generator.Respond(stage.Outline, &stage.Response{Beats: []stage.BeatDraft{{Description: "a"}, {Description: "b"}, {Description: "c"}}})
			tx := s.Begin(1)
			ids, err := tracker.GenerateNext(ctx, tx, nil, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(HaveLen(2))
		})

		It("stages beats only in the transaction it is given", func() {
			generator.Respond(stage.Outline, &stage.Response{Beats: []stage.BeatDraft{{Description: "a"}, {Description: "b"}}})
			tx := s.Begin(1)
			ids, err := tracker.GenerateNext(ctx, tx, nil, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(tracker.Pending(tx)).To(HaveLen(2))
			Expect(tracker.Pending(s)).To(BeEmpty())

			tx.Discard()
			Expect(tracker.Pending(s)).To(BeEmpty())
			_, err = s.Get(ids[0])
			Expect(err).To(HaveOccurred())
		})

		It("lists the roster and pending beats in the outline request", func() {
			generate(stage.BeatDraft{Description: "Mira finds the letter"})
			generate(stage.BeatDraft{Description: "The storm breaks"})

			reqs := generator.Requests()
			Expect(reqs[1].Context).To(ContainSubstring("Mira Vell (char_001)"))
			Expect(reqs[1].Context).To(ContainSubstring("[beat_001] Mira finds the letter"))
		})

		It("propagates generator failures", func() {
			generator.Fail(stage.Outline, stage.ErrMalformed)
			_, err := tracker.GenerateNext(ctx, s.Begin(1), nil, 2)
			Expect(err).To(MatchError(stage.ErrGeneration))
		})
	})

	Describe("NextPending", func() {
		It("is nil without pending beats", func() {
			Expect(tracker.NextPending(s)).To(BeNil())
		})

		It("is FIFO by id", func() {
			generate(stage.BeatDraft{Description: "first"}, stage.BeatDraft{Description: "second"})
			Expect(tracker.NextPending(s).ID).To(Equal("beat_001"))

			tx := s.Begin(2)
			Expect(tracker.MarkComplete(tx, "beat_001", sceneID, "done")).To(Succeed())
			Expect(tx.Commit(ctx)).To(Succeed())
			Expect(tracker.NextPending(s).ID).To(Equal("beat_002"))
		})
	})

	Describe("MarkComplete", func() {
		BeforeEach(func() {
			generate(stage.BeatDraft{Description: "Mira finds the letter"})
		})

		It("completes a pending beat exactly once", func() {
			tx := s.Begin(2)
			Expect(tracker.MarkComplete(tx, "beat_001", sceneID, "found under the lamp")).To(Succeed())
			Expect(tx.Commit(ctx)).To(Succeed())

			beat, err := store.GetAs[*world.PlotBeat](s, "beat_001")
			Expect(err).NotTo(HaveOccurred())
			Expect(beat.Status).To(Equal(world.BeatCompleted))
			Expect(beat.ExecutedInScene).To(Equal(sceneID))
			Expect(beat.ExecutionNotes).To(Equal("found under the lamp"))
			Expect(beat.History).To(ContainElement(HaveField("Field", "status")))

			tx = s.Begin(3)
			Expect(tracker.MarkComplete(tx, "beat_001", sceneID, "again")).To(MatchError(plot.ErrInvalidTransition))
		})

		It("fails for unknown beats", func() {
			err := tracker.MarkComplete(s.Begin(2), "beat_099", sceneID, "")
			Expect(world.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("MarkSkipped", func() {
		BeforeEach(func() {
			generate(stage.BeatDraft{Description: "Mira finds the letter"})
		})

		It("is refused unless skipping is allowed", func() {
			Expect(tracker.MarkSkipped(s.Begin(2), "beat_001", "stalled")).To(MatchError(plot.ErrSkipNotAllowed))
		})

		It("skips a pending beat when allowed, after which it cannot complete", func() {
			skipper := plot.New(plot.Config{Generator: generator, AllowSkip: true})
			tx := s.Begin(2)
			Expect(skipper.MarkSkipped(tx, "beat_001", "stalled")).To(Succeed())
			Expect(skipper.MarkComplete(tx, "beat_001", sceneID, "")).To(MatchError(plot.ErrInvalidTransition))
			Expect(tx.Commit(ctx)).To(Succeed())

			Expect(skipper.NextPending(s)).To(BeNil())
		})
	})
})
