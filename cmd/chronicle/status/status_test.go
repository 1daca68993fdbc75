package statuscmder

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/engine"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var _ = Describe("render", func() {
	It("summarises counts, scenes, beats and options", func() {
		var buf bytes.Buffer
		render(&buf, engine.Status{
			Project:      "harbor",
			Tick:         7,
			Counts:       map[world.Kind]int{world.KindCharacter: 3, world.KindScene: 7},
			PendingBeats: 1,
			Options:      config.NewDefaultConfig().Engine,
		}, []*world.Scene{
			{Meta: world.Meta{ID: "scene_007"}, Tension: 6, Intention: "Tomas confronts Mira"},
		}, []*world.PlotBeat{
			{Meta: world.Meta{ID: "beat_004"}, Description: "The lighthouse goes dark"},
		})

		s := buf.String()
		Expect(s).To(ContainSubstring("harbor"))
		Expect(s).To(MatchRegexp(`character\s+3`))
		Expect(s).To(ContainSubstring("scene_007"))
		Expect(s).To(ContainSubstring("Tomas confronts Mira"))
		Expect(s).To(ContainSubstring("beat_004"))
		Expect(s).To(MatchRegexp(`plot first\s+true`))
	})

	It("says when no beats are pending", func() {
		var buf bytes.Buffer
		render(&buf, engine.Status{Project: "harbor"}, nil, nil)
		Expect(buf.String()).To(ContainSubstring("none"))
	})
})
