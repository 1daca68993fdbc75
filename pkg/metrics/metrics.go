// Package metrics exposes tick outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/chronicle/pkg/tick"
)

const namespace = "chronicle"

// Recorder implements tick.Recorder on a private registry so several
// projects can run in one process without colliding on global collectors.
type Recorder struct {
	registry *prometheus.Registry

	completed      *prometheus.CounterVec
	aborted        *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	stageErrors    *prometheus.CounterVec
	contradictions prometheus.Counter
	duration       prometheus.Histogram
	tension        prometheus.Histogram
	words          prometheus.Histogram
	currentTick    prometheus.Gauge
}

// NewRecorder creates a Recorder whose metrics carry a constant project label.
func NewRecorder(project string) *Recorder {
	labels := prometheus.Labels{"project": project}
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "ticks_completed_total",
				Help:        "Ticks that committed a scene",
				ConstLabels: labels,
			},
			[]string{"degraded"},
		),
		aborted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "ticks_aborted_total",
				Help:        "Ticks aborted before commit, by state",
				ConstLabels: labels,
			},
			[]string{"state"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "fallbacks_total",
				Help:        "Fallback paths taken, by state",
				ConstLabels: labels,
			},
			[]string{"state"},
		),
		stageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "stage_errors_total",
				Help:        "Failures confined to one state of a committed tick",
				ConstLabels: labels,
			},
			[]string{"state"},
		),
		contradictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "lore_contradictions_total",
			Help:        "Lore items flagged as potentially contradicting earlier lore",
			ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "tick_duration_seconds",
			Help:        "Wall time of committed ticks",
			ConstLabels: labels,
			Buckets:     []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		tension: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "scene_tension",
			Help:        "Tension score of committed scenes",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 1, 11),
		}),
		words: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "scene_words",
			Help:        "Word count of committed scenes",
			ConstLabels: labels,
			Buckets:     []float64{100, 250, 500, 1000, 2000, 4000},
		}),
		currentTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "current_tick",
			Help:        "Last committed tick",
			ConstLabels: labels,
		}),
	}

	r.registry.MustRegister(
		r.completed,
		r.aborted,
		r.fallbacks,
		r.stageErrors,
		r.contradictions,
		r.duration,
		r.tension,
		r.words,
		r.currentTick,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// TickCompleted implements tick.Recorder.
func (r *Recorder) TickCompleted(res *tick.Result) {
	degraded := "false"
	if res.Degraded || len(res.Fallbacks) > 0 {
		degraded = "true"
	}
	r.completed.WithLabelValues(degraded).Inc()
	for _, e := range res.StageErrors {
		r.stageErrors.WithLabelValues(string(e.State)).Inc()
	}
	r.duration.Observe(res.Duration.Seconds())
	r.tension.Observe(float64(res.Tension))
	r.words.Observe(float64(res.WordCount))
	r.currentTick.Set(float64(res.Tick))
}

// TickAborted implements tick.Recorder.
func (r *Recorder) TickAborted(state tick.State, _ error) {
	r.aborted.WithLabelValues(string(state)).Inc()
}

// Fallback implements tick.Recorder.
func (r *Recorder) Fallback(state tick.State) {
	r.fallbacks.WithLabelValues(string(state)).Inc()
}

// Contradictions implements tick.Recorder.
func (r *Recorder) Contradictions(n int) {
	if n > 0 {
		r.contradictions.Add(float64(n))
	}
}

// Registry returns the registry the recorder's collectors live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Nop discards everything.
type Nop struct{}

func (Nop) TickCompleted(*tick.Result) {}
func (Nop) TickAborted(tick.State, error) {}
func (Nop) Fallback(tick.State) {}
func (Nop) Contradictions(int) {}

var (
	_ tick.Recorder = (*Recorder)(nil)
	_ tick.Recorder = Nop{}
)
