package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

func character(first, family string) *world.Character {
	return &world.Character{FirstName: first, FamilyName: family}
}

func lore(content string) *world.LoreItem {
	return &world.LoreItem{
		Content:    content,
		Type:       world.LoreRule,
		Category:   world.CategoryMagic,
		Importance: world.ImportanceNormal,
	}
}

var _ = Describe("Store", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		s      *store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()

		var err error
		s, err = store.Open(ctx, driver, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Create", func() {
		It("allocates sequential type-prefixed ids", func() {
			tx := s.Begin(1)
			a, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())
			b, err := tx.Create(character("Ilse", "Brandt"))
			Expect(err).NotTo(HaveOccurred())
			l, err := tx.Create(&world.Location{Name: "The Quay"})
			Expect(err).NotTo(HaveOccurred())

			Expect([]string{a, b, l}).To(Equal([]string{"char_001", "char_002", "loc_001"}))
		})

		It("predicts the next committed id", func() {
			Expect(s.NextID(world.KindCharacter)).To(Equal("char_001"))

			tx := s.Begin(1)
			id, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(s.NextID(world.KindCharacter)))
			Expect(tx.Commit(ctx)).To(Succeed())

			Expect(s.NextID(world.KindCharacter)).To(Equal("char_002"))
		})

		It("stamps the creation tick and does not modify the caller's value", func() {
			c := character("Mara", "Vell")
			tx := s.Begin(3)
			id, err := tx.Create(c)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).To(BeEmpty())

			got, err := store.GetAs[*world.Character](tx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CreatedTick).To(Equal(3))
		})

		It("hides staged entities from readers until commit", func() {
			tx := s.Begin(1)
			id, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())

			_, err = tx.Get(id)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Get(id)
			Expect(world.IsNotFound(err)).To(BeTrue())

			Expect(tx.Commit(ctx)).To(Succeed())
			_, err = s.Get(id)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a duplicate full name within one transaction", func() {
			tx := s.Begin(1)
			_, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())

			_, err = tx.Create(character(" mara ", "VELL"))
			var dup world.DuplicateEntityError
			Expect(errors.As(err, &dup)).To(BeTrue())
			Expect(dup.ExistingID).To(Equal("char_001"))
		})

		It("rejects a duplicate full name against committed characters", func() {
			tx := s.Begin(1)
			_, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())
			Expect(tx.Commit(ctx)).To(Succeed())

			_, err = s.Begin(2).Create(character("Mara", "Vell"))
			Expect(world.IsDuplicate(err)).To(BeTrue())
		})

		It("treats a title as part of the full name", func() {
			tx := s.Begin(1)
			_, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())
			_, err = tx.Create(&world.Character{Title: "Captain", FirstName: "Mara", FamilyName: "Vell"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires relationship endpoints to exist", func() {
			tx := s.Begin(1)
			a, err := tx.Create(character("Mara", "Vell"))
			Expect(err).NotTo(HaveOccurred())

			_, err = tx.Create(&world.Relationship{SourceID: a, TargetID: "char_009", Type: "ally"})
			var nf world.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.ID).To(Equal("char_009"))
		})

		It("rejects references to the wrong kind", func() {
			tx := s.Begin(1)
			l, err := tx.Create(&world.Location{Name: "The Quay"})
			Expect(err).NotTo(HaveOccurred())

			_, err = tx.Create(&world.Location{Name: "Harbor", Occupants: []string{l}})
			Expect(world.IsNotFound(err)).To(BeTrue())
		})

		It("creates mirrored relationships", func() {
			tx := s.Begin(1)
			a, _ := tx.Create(character("Mara", "Vell"))
			b, _ := tx.Create(character("Ilse", "Brandt"))

			ids, err := tx.CreateRelationship(&world.Relationship{SourceID: a, TargetID: b, Type: "sibling", Strength: 0.8}, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"rel_001", "rel_002"}))

			inv, err := store.GetAs[*world.Relationship](tx, ids[1])
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.SourceID).To(Equal(b))
			Expect(inv.TargetID).To(Equal(a))
		})

		It("finds the mirror of a relationship by reversed endpoints and type", func() {
			tx := s.Begin(1)
			a, _ := tx.Create(character("Mara", "Vell"))
			b, _ := tx.Create(character("Ilse", "Brandt"))
			ids, err := tx.CreateRelationship(&world.Relationship{SourceID: a, TargetID: b, Type: "sibling", Strength: 0.8}, true)
			Expect(err).NotTo(HaveOccurred())
			_, err = tx.CreateRelationship(&world.Relationship{SourceID: b, TargetID: a, Type: "debtor", Strength: 0.1}, false)
			Expect(err).NotTo(HaveOccurred())

			rel, _ := store.GetAs[*world.Relationship](tx, ids[0])
			inv, ok := store.MirrorOf(tx, rel)
			Expect(ok).To(BeTrue())
			Expect(inv.ID).To(Equal(ids[1]))

			one, err := tx.CreateRelationship(&world.Relationship{SourceID: a, TargetID: b, Type: "creditor", Strength: 0.1}, false)
			Expect(err).NotTo(HaveOccurred())
			lone, _ := store.GetAs[*world.Relationship](tx, one[0])
			_, ok = store.MirrorOf(tx, lone)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Update", func() {
		It("appends tick-stamped history", func() {
			tx := s.Begin(1)
			id, _ := tx.Create(character("Mara", "Vell"))
			Expect(tx.Commit(ctx)).To(Succeed())

			tx = s.Begin(2)
			Expect(tx.Update(id, world.Patch{"state.emotional": "grieving"})).To(Succeed())
			Expect(tx.Commit(ctx)).To(Succeed())

			got, err := store.GetAs[*world.Character](s, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State.Emotional).To(Equal("grieving"))
			Expect(got.History).To(Equal([]world.Change{{Tick: 2, Field: "state.emotional", Old: "", New: "grieving"}}))
		})

		It("fails for unknown ids", func() {
			err := s.Begin(1).Update("char_042", world.Patch{"title": "Sir"})
			Expect(world.IsNotFound(err)).To(BeTrue())
		})

		It("re-checks uniqueness on rename", func() {
			tx := s.Begin(1)
			_, _ = tx.Create(character("Mara", "Vell"))
			id, _ := tx.Create(character("Ilse", "Vell"))

			err := tx.Update(id, world.Patch{"first_name": "Mara"})
			Expect(world.IsDuplicate(err)).To(BeTrue())
		})

		It("allows a character to keep its own name", func() {
			tx := s.Begin(1)
			id, _ := tx.Create(character("Mara", "Vell"))
			Expect(tx.Update(id, world.Patch{"first_name": "MARA"})).To(Succeed())
		})
	})

	Describe("Delete", func() {
		It("refuses kinds other than lore and checkpoints", func() {
			tx := s.Begin(1)
			id, _ := tx.Create(character("Mara", "Vell"))
			Expect(tx.Delete(id)).To(MatchError(world.ErrNotDeletable))
		})

		It("strips contradiction back-references with history", func() {
			tx := s.Begin(1)
			a, _ := tx.Create(lore("Iron burns the fae"))
			b, _ := tx.Create(lore("The fae forge iron"))
			Expect(tx.Update(a, world.Patch{"contradicts": []string{b}})).To(Succeed())
			Expect(tx.Update(b, world.Patch{"contradicts": []string{a}})).To(Succeed())
			Expect(tx.Commit(ctx)).To(Succeed())

			tx = s.Begin(2)
			Expect(tx.Delete(a)).To(Succeed())
			Expect(tx.Commit(ctx)).To(Succeed())

			_, err := s.Get(a)
			Expect(world.IsNotFound(err)).To(BeTrue())

			other, err := store.GetAs[*world.LoreItem](s, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Contradicts).To(BeEmpty())
			Expect(other.History[len(other.History)-1].Tick).To(Equal(2))
		})
	})

	Describe("Commit", func() {
		It("discards every staged change when the driver fails", func() {
			tx := s.Begin(1)
			for _, name := range []string{"Ann", "Ben", "Cas", "Dov", "Eli"} {
				_, err := tx.Create(character(name, "Hale"))
				Expect(err).NotTo(HaveOccurred())
			}
			driver.FailNextCommit(errors.New("power loss"))

			Expect(tx.Commit(ctx)).To(HaveOccurred())
			Expect(s.List(world.KindCharacter, nil)).To(BeEmpty())
			Expect(driver.Len()).To(Equal(0))

			reopened, err := store.Open(ctx, driver, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.List(world.KindCharacter, nil)).To(BeEmpty())
		})

		It("leaves the store untouched on discard", func() {
			tx := s.Begin(1)
			_, _ = tx.Create(character("Mara", "Vell"))
			tx.Discard()

			Expect(s.List(world.KindCharacter, nil)).To(BeEmpty())
			_, err := tx.Create(character("Ilse", "Brandt"))
			Expect(err).To(MatchError(store.ErrTxDone))
		})

		It("completes even when the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			tx := s.Begin(1)
			_, _ = tx.Create(character("Mara", "Vell"))
			Expect(tx.Commit(cctx)).To(Succeed())
			Expect(s.List(world.KindCharacter, nil)).To(HaveLen(1))
		})

		It("never reuses an id after reopening", func() {
			tx := s.Begin(1)
			_, _ = tx.Create(lore("Salt wards spirits"))
			id, _ := tx.Create(lore("Spirits fear bells"))
			Expect(tx.Commit(ctx)).To(Succeed())

			tx = s.Begin(2)
			Expect(tx.Delete(id)).To(Succeed())
			Expect(tx.Commit(ctx)).To(Succeed())

			reopened, err := store.Open(ctx, driver, nil)
			Expect(err).NotTo(HaveOccurred())
			next, err := reopened.Begin(3).Create(lore("Bells ring at dusk"))
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal("lore_003"))
		})

		It("persists the world tick", func() {
			tx := s.Begin(1)
			tx.AdvanceTick(1)
			Expect(tx.Tick()).To(Equal(1))
			Expect(s.Tick()).To(Equal(0))
			Expect(tx.Commit(ctx)).To(Succeed())

			reopened, err := store.Open(ctx, driver, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.Tick()).To(Equal(1))
		})

		It("rejects a transaction that lost an id race", func() {
			first := s.Begin(1)
			second := s.Begin(1)
			_, _ = first.Create(character("Mara", "Vell"))
			_, _ = second.Create(character("Ilse", "Brandt"))

			Expect(first.Commit(ctx)).To(Succeed())
			Expect(second.Commit(ctx)).To(MatchError(store.ErrConflict))
		})
	})

	Describe("Export and Import", func() {
		It("round trips content-identically and keeps checkpoint records", func() {
			tx := s.Begin(1)
			a, _ := tx.Create(character("Mara", "Vell"))
			b, _ := tx.Create(character("Ilse", "Brandt"))
			_, _ = tx.CreateRelationship(&world.Relationship{SourceID: a, TargetID: b, Type: "rival", Strength: -0.5}, true)
			_, _ = tx.Create(lore("The tide obeys the moon-bell"))
			tx.AdvanceTick(1)
			Expect(tx.Commit(ctx)).To(Succeed())

			before, err := s.Export()
			Expect(err).NotTo(HaveOccurred())

			tx = s.Begin(2)
			_, _ = tx.Create(character("Cas", "Orr"))
			Expect(tx.Update(a, world.Patch{"state.physical": "wounded"})).To(Succeed())
			_, _ = tx.Create(&world.Checkpoint{Tick: 2, Bundle: "ckpt_001.json", CreatedAt: time.Unix(0, 0).UTC()})
			tx.AdvanceTick(2)
			Expect(tx.Commit(ctx)).To(Succeed())

			Expect(s.Import(ctx, before)).To(Succeed())

			after, err := s.Export()
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.Diff(before.Records, after.Records)).To(BeEmpty())
			Expect(after.Tick).To(Equal(before.Tick))
			Expect(s.Tick()).To(Equal(1))
			Expect(s.List(world.KindCheckpoint, nil)).To(HaveLen(1))

			// counters keep moving forward
			next, err := s.Begin(2).Create(character("Dov", "Orr"))
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal("char_004"))
		})

		It("survives a reopen after import", func() {
			tx := s.Begin(1)
			_, _ = tx.Create(character("Mara", "Vell"))
			Expect(tx.Commit(ctx)).To(Succeed())
			snap, err := s.Export()
			Expect(err).NotTo(HaveOccurred())

			tx = s.Begin(2)
			_, _ = tx.Create(character("Ilse", "Brandt"))
			Expect(tx.Commit(ctx)).To(Succeed())
			Expect(s.Import(ctx, snap)).To(Succeed())

			reopened, err := store.Open(ctx, driver, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.List(world.KindCharacter, nil)).To(HaveLen(1))
			_, ok := reopened.CharacterByName("ilse brandt")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("List", func() {
		It("orders by id sequence and applies the filter", func() {
			tx := s.Begin(1)
			for i := range 11 {
				_, err := tx.Create(character("Ann", string(rune('A'+i))))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(tx.Commit(ctx)).To(Succeed())

			all := s.List(world.KindCharacter, nil)
			Expect(all).To(HaveLen(11))
			Expect(all[9].Base().ID).To(Equal("char_010"))
			Expect(all[10].Base().ID).To(Equal("char_011"))

			bs := store.ListAs[*world.Character](s, world.KindCharacter, func(e world.Entity) bool {
				return e.(*world.Character).FamilyName == "B"
			})
			Expect(bs).To(HaveLen(1))
		})
	})
})
