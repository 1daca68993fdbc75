package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/metrics"
	"github.com/papercomputeco/chronicle/pkg/tick"
)

func scrape(r *metrics.Recorder) string {
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}

var _ = Describe("Recorder", func() {
	var r *metrics.Recorder

	BeforeEach(func() {
		r = metrics.NewRecorder("harbor")
	})

	It("counts completed ticks and observes their scene", func() {
		r.TickCompleted(&tick.Result{
			Tick:      4,
			SceneID:   "scene_004",
			Tension:   6,
			WordCount: 320,
			Duration:  1500 * time.Millisecond,
			StageErrors: []tick.StageError{
				{State: tick.StateDone, Message: "broker down"},
			},
		})

		out := scrape(r)
		Expect(out).To(ContainSubstring(`chronicle_ticks_completed_total{degraded="false",project="harbor"} 1`))
		Expect(out).To(ContainSubstring(`chronicle_stage_errors_total{project="harbor",state="DONE"} 1`))
		Expect(out).To(ContainSubstring(`chronicle_current_tick{project="harbor"} 4`))
		Expect(out).To(ContainSubstring(`chronicle_scene_tension_count{project="harbor"} 1`))
		Expect(out).To(ContainSubstring(`chronicle_tick_duration_seconds_sum{project="harbor"} 1.5`))
	})

	It("labels ticks with fallbacks as degraded", func() {
		r.TickCompleted(&tick.Result{
			Tick:      1,
			Fallbacks: []tick.Fallback{{State: tick.StatePlan, Reason: "reactive"}},
		})
		Expect(scrape(r)).To(ContainSubstring(`chronicle_ticks_completed_total{degraded="true",project="harbor"} 1`))
	})

	It("counts aborts and fallbacks by state", func() {
		r.TickAborted(tick.StateExecuteTools, errors.New("boom"))
		r.TickAborted(tick.StateExecuteTools, errors.New("boom"))
		r.Fallback(tick.StateLoreCheck)

		out := scrape(r)
		Expect(out).To(ContainSubstring(`chronicle_ticks_aborted_total{project="harbor",state="EXECUTE_TOOLS"} 2`))
		Expect(out).To(ContainSubstring(`chronicle_fallbacks_total{project="harbor",state="LORE_CHECK"} 1`))
	})

	It("adds contradictions and ignores zero", func() {
		r.Contradictions(0)
		r.Contradictions(3)
		Expect(scrape(r)).To(ContainSubstring(`chronicle_lore_contradictions_total{project="harbor"} 3`))
	})

	It("keeps separate registries per recorder", func() {
		other := metrics.NewRecorder("mill")
		other.Fallback(tick.StatePlan)

		Expect(scrape(r)).NotTo(ContainSubstring(`project="mill"`))
		Expect(scrape(other)).To(ContainSubstring(`chronicle_fallbacks_total{project="mill",state="PLAN"} 1`))
	})
})

var _ = Describe("Nop", func() {
	It("accepts every call", func() {
		var rec tick.Recorder = metrics.Nop{}
		Expect(func() {
			rec.TickCompleted(&tick.Result{})
			rec.TickAborted(tick.StatePlan, nil)
			rec.Fallback(tick.StatePlan)
			rec.Contradictions(2)
		}).NotTo(Panic())
	})
})
