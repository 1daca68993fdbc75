package tick_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/tick"
)

var _ = Describe("Decode", func() {
	It("knows exactly the six planner tools", func() {
		Expect(tick.SupportedActions()).To(Equal([]tick.ActionKind{
			tick.KindGenerateCharacter,
			tick.KindMoveCharacter,
			tick.KindUpdateCharacter,
			tick.KindGenerateLocation,
			tick.KindAdjustRelationship,
			tick.KindCreateRelationship,
		}))
	})

	It("decodes arguments into the typed action", func() {
		a, err := tick.Decode(stage.Action("character.move", map[string]any{"id": "char_001", "location_id": "loc_002"}))
		Expect(err).NotTo(HaveOccurred())

		move, ok := a.(*tick.MoveCharacter)
		Expect(ok).To(BeTrue())
		Expect(move.ID).To(Equal("char_001"))
		Expect(move.LocationID).To(Equal("loc_002"))
		Expect(a.Kind()).To(Equal(tick.KindMoveCharacter))
	})

	It("rejects tools outside the set", func() {
		_, err := tick.Decode(stage.RawAction{Tool: "world.destroy"})
		Expect(err).To(MatchError(tick.ErrUnknownTool))
	})

	It("rejects arguments of the wrong shape", func() {
		_, err := tick.Decode(stage.RawAction{Tool: "relationship.adjust", Args: json.RawMessage(`{"delta":"lots"}`)})
		Expect(err).To(MatchError(tick.ErrInvalidArgs))
	})

	It("mirrors new relationships unless told otherwise", func() {
		a, err := tick.Decode(stage.Action("relationship.create", map[string]any{"source_id": "a", "target_id": "b", "mirrored": false}))
		Expect(err).NotTo(HaveOccurred())
		rel := a.(*tick.CreateRelationship)
		Expect(rel.Mirrored).NotTo(BeNil())
		Expect(*rel.Mirrored).To(BeFalse())
	})
})
