package recall_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/embeddings/hashing"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/recall"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/tokens"
	testutils "github.com/papercomputeco/chronicle/pkg/utils/test"
	vectorinmem "github.com/papercomputeco/chronicle/pkg/vector/inmemory"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var _ = Describe("Assembler", func() {
	var (
		ctx      context.Context
		s        *store.Store
		entities *index.Index
		driver   *testutils.MockVectorDriver
		beat     *world.PlotBeat
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		s, err = store.Open(ctx, inmemory.NewDriver(), nil)
		Expect(err).NotTo(HaveOccurred())

		tx := s.Begin(0)
		mira, err := tx.Create(&world.Character{FirstName: "Mira", FamilyName: "Vell", Title: "Captain", Description: "Keeper of the northern lighthouse"})
		Expect(err).NotTo(HaveOccurred())
		tomas, err := tx.Create(&world.Character{FirstName: "Tomas", FamilyName: "Reed", Description: "A smuggler who fears the lighthouse"})
		Expect(err).NotTo(HaveOccurred())
		loc, err := tx.Create(&world.Location{Name: "The Lighthouse", Atmosphere: "wind and salt"})
		Expect(err).NotTo(HaveOccurred())
		_, err = tx.Create(&world.Location{Name: "Copper Market", Atmosphere: "crowded stalls"})
		Expect(err).NotTo(HaveOccurred())
		beatID, err := tx.Create(&world.PlotBeat{
			Description:        "Tomas confronts Mira at the lighthouse",
			RequiredCharacters: []string{mira, tomas},
			RequiredLocation:   loc,
			TensionTarget:      7,
			Status:             world.BeatPending,
		})
		Expect(err).NotTo(HaveOccurred())
		for i, tension := range []int{6, 5, 6, 5} {
			_, err = tx.Create(&world.Scene{Tick: i + 1, Text: "Waves.", Tension: tension})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(tx.Commit(ctx)).To(Succeed())

		beat, err = store.GetAs[*world.PlotBeat](s, beatID)
		Expect(err).NotTo(HaveOccurred())

		driver = testutils.NewMockVectorDriver()
		entities, err = index.New(index.Config{Name: index.Entities, Embedder: hashing.NewEmbedder(128), Driver: driver})
		Expect(err).NotTo(HaveOccurred())
		for _, kind := range []world.Kind{world.KindCharacter, world.KindLocation} {
			for _, e := range s.List(kind, nil) {
				text, meta, ok := index.Document(e)
				Expect(ok).To(BeTrue())
				Expect(entities.Index(ctx, e.Base().ID, text, meta)).To(Succeed())
			}
		}
	})

	request := func() recall.Request {
		return recall.Request{Tick: 5, POVCharacterID: "char_001", Intention: "a storm reaches the lighthouse", PendingBeat: beat}
	}

	It("carries both names of the POV character", func() {
		p, err := recall.NewAssembler(recall.Config{Entities: entities}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.POV.For(world.AudiencePlanning)).To(Equal("Captain Mira Vell"))
		Expect(p.POV.For(world.AudienceProse)).To(Equal("Mira"))
	})

	It("renders full names for planners and display names for writers", func() {
		p, err := recall.NewAssembler(recall.Config{Entities: entities}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())

		planning := p.Render(world.AudiencePlanning)
		Expect(planning).To(ContainSubstring("Captain Mira Vell (char_001)"))
		Expect(planning).To(ContainSubstring("Required characters: Captain Mira Vell (char_001), Tomas Reed (char_002)"))

		prose := p.Render(world.AudienceProse)
		Expect(prose).To(ContainSubstring("Required characters: Mira, Tomas"))
		Expect(prose).NotTo(ContainSubstring("Captain Mira Vell"))
		Expect(prose).NotTo(ContainSubstring("char_001"))
	})

	It("retrieves relevant entities, excluding the POV character", func() {
		p, err := recall.NewAssembler(recall.Config{Entities: entities, TopK: 2}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Degraded).To(BeFalse())
		Expect(p.Entities).To(HaveLen(2))

		ids := []string{p.Entities[0].Entity.Base().ID, p.Entities[1].Entity.Base().ID}
		Expect(ids).NotTo(ContainElement("char_001"))
		Expect(ids).To(ContainElement("loc_001"))
		Expect(p.Entities[0].Score).To(BeNumerically(">=", p.Entities[1].Score))
	})

	It("stops admitting entities at the token budget", func() {
		unbounded, err := recall.NewAssembler(recall.Config{Entities: entities}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(len(unbounded.Entities)).To(BeNumerically(">", 1))

		budget := unbounded.Tokens - unbounded.Entities[len(unbounded.Entities)-1].Tokens
		bounded, err := recall.NewAssembler(recall.Config{Entities: entities, MaxTokens: budget}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(bounded.Entities).To(HaveLen(len(unbounded.Entities) - 1))
		Expect(bounded.Tokens).To(BeNumerically("<=", budget))
	})

	It("counts with the configured counter", func() {
		words := tokens.CounterFunc(func(s string) int { return len(strings.Fields(s)) })
		p, err := recall.NewAssembler(recall.Config{Entities: entities, Counter: words}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Tokens).To(BeNumerically(">", 0))
	})

	It("summarises tension and emits guidance only when enabled", func() {
		p, err := recall.NewAssembler(recall.Config{Entities: entities, TensionGuidance: true}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Tension.Scores).To(Equal([]int{6, 5, 6, 5}))
		Expect(p.Tension.Pattern).To(Equal(recall.PatternSteady))
		Expect(p.Render(world.AudienceProse)).To(ContainSubstring("Suggestion (advisory)"))

		p, err = recall.NewAssembler(recall.Config{Entities: entities}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Tension.Guidance).To(BeEmpty())
		Expect(p.Render(world.AudienceProse)).NotTo(ContainSubstring("Suggestion"))
	})

	It("degrades to identity, tension and beat when the index is unavailable", func() {
		driver.FailQuery = true
		p, err := recall.NewAssembler(recall.Config{Entities: entities, TensionGuidance: true}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Degraded).To(BeTrue())
		Expect(p.Entities).To(BeEmpty())
		Expect(p.POV).NotTo(BeNil())
		Expect(p.Beat).NotTo(BeNil())
		Expect(p.Tension.Scores).To(HaveLen(4))
	})

	It("degrades without an entity index", func() {
		p, err := recall.NewAssembler(recall.Config{}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Degraded).To(BeTrue())
		Expect(p.Reason).To(Equal(recall.ErrNoEntityIndex.Error()))
		Expect(p.Entities).To(BeEmpty())
		Expect(p.POV).NotTo(BeNil())
		Expect(p.Beat).NotTo(BeNil())
	})

	It("fails for an unknown POV character", func() {
		req := request()
		req.POVCharacterID = "char_099"
		_, err := recall.NewAssembler(recall.Config{Entities: entities}).Assemble(ctx, s, req)
		Expect(world.IsNotFound(err)).To(BeTrue())
	})

	It("skips hits whose entity is gone from the store", func() {
		other, err := index.New(index.Config{Name: index.Entities, Embedder: hashing.NewEmbedder(128), Driver: vectorinmem.NewDriver()})
		Expect(err).NotTo(HaveOccurred())
		Expect(other.Index(ctx, "lore_042", "storm lighthouse", nil)).To(Succeed())

		p, err := recall.NewAssembler(recall.Config{Entities: other}).Assemble(ctx, s, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Entities).To(BeEmpty())
		Expect(p.Degraded).To(BeFalse())
	})
})
