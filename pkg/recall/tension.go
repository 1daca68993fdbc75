package recall

import "fmt"

// Pattern classifies recent tension scores.
type Pattern string

const (
	PatternNone          Pattern = ""
	PatternSteady        Pattern = "steady"
	PatternSustainedHigh Pattern = "sustained-high"
	PatternSustainedLow  Pattern = "sustained-low"
)

// guidanceWindow is the number of latest scores the pattern looks at.
const guidanceWindow = 4

var guidanceText = map[Pattern]string{
	PatternSteady:        "Tension has held at a similar level for several scenes. Consider a change of pace, either a sharper escalation or a quieter beat.",
	PatternSustainedHigh: "Tension has stayed high for several scenes. Consider a moment of release or reflection before the next escalation.",
	PatternSustainedLow:  "Tension has stayed low for several scenes. Consider introducing a complication or raising the stakes.",
}

// Classify returns the pattern of the last four scores. Fewer than four
// scores yield PatternNone.
func Classify(scores []int) Pattern {
	if len(scores) < guidanceWindow {
		return PatternNone
	}
	last := scores[len(scores)-guidanceWindow:]

	mean, variance := stats(last)
	switch {
	case variance <= 1:
		return PatternSteady
	case allAtLeast(last, 6) && mean >= 7:
		return PatternSustainedHigh
	case allAtMost(last, 4) && mean <= 3:
		return PatternSustainedLow
	}
	return PatternNone
}

// Guidance returns the advisory text for scores, or "" when disabled or
// when there is no pattern.
func Guidance(scores []int, enabled bool) string {
	if !enabled {
		return ""
	}
	return guidanceText[Classify(scores)]
}

// stats returns the mean and population variance.
func stats(xs []int) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	return mean, sq / float64(len(xs))
}

func allAtLeast(xs []int, n int) bool {
	for _, x := range xs {
		if x < n {
			return false
		}
	}
	return true
}

func allAtMost(xs []int, n int) bool {
	for _, x := range xs {
		if x > n {
			return false
		}
	}
	return true
}

// Tension summarises recent scene tension.
type Tension struct {
	Scores   []int   `json:"scores"`
	Mean     float64 `json:"mean"`
	Pattern  Pattern `json:"pattern,omitempty"`
	Guidance string  `json:"guidance,omitempty"`
}

func newTension(scores []int, enabled bool) Tension {
	mean, _ := stats(scores)
	t := Tension{Scores: scores, Mean: mean, Guidance: Guidance(scores, enabled)}
	if t.Guidance != "" {
		t.Pattern = Classify(scores)
	}
	return t
}

func (t Tension) summary() string {
	if len(t.Scores) == 0 {
		return "No scenes yet."
	}
	return fmt.Sprintf("Recent scene tension (oldest first): %s (mean %.1f)", joinInts(t.Scores), t.Mean)
}

func joinInts(xs []int) string {
	s := ""
	for i, x := range xs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(x)
	}
	return s
}
