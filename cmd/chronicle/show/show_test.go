package showcmder

import (
	"bytes"
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var _ = Describe("show", func() {
	var s *store.Store

	BeforeEach(func() {
		ctx := context.Background()
		var err error
		s, err = store.Open(ctx, inmemory.NewDriver(), nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)

		tx := s.Begin(0)
		_, err = tx.Create(&world.Character{FirstName: "Mira", FamilyName: "Vell"})
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit(ctx)).To(Succeed())

		tx = s.Begin(1)
		_, err = tx.Create(&world.Scene{
			Tick:           1,
			POVCharacterID: "char_001",
			Text:           "Mira watched the boats come in.",
			WordCount:      6,
			Intention:      "Mira waits for news",
			Tension:        3,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit(ctx)).To(Succeed())
	})

	It("renders scenes as markdown", func() {
		var buf bytes.Buffer
		Expect(show(&buf, s, "scene_001", true)).To(Succeed())
		Expect(buf.String()).To(HavePrefix("# scene_001\n"))
		Expect(buf.String()).To(ContainSubstring("pov Mira Vell"))
		Expect(buf.String()).To(ContainSubstring("tension 3/10"))
		Expect(buf.String()).To(ContainSubstring("> Mira waits for news"))
		Expect(buf.String()).To(HaveSuffix("Mira watched the boats come in.\n"))
	})

	It("prints other entities as JSON", func() {
		var buf bytes.Buffer
		Expect(show(&buf, s, "char_001", false)).To(Succeed())

		var got map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &got)).To(Succeed())
		Expect(got).To(HaveKeyWithValue("first_name", "Mira"))
	})

	It("returns not found for unknown ids", func() {
		err := show(&bytes.Buffer{}, s, "scene_404", true)
		Expect(world.IsNotFound(err)).To(BeTrue())
	})
})
