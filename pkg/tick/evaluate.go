package tick

import (
	"math"
	"strings"
	"unicode"

	"github.com/papercomputeco/chronicle/pkg/world"
)

// tensionWords raise the tension score; calmWords lower it.
var (
	tensionWords = map[string]float64{
		"attack": 1, "blade": 1, "blood": 1.5, "breath": 0.5, "burn": 1,
		"chase": 1, "collapse": 1, "danger": 1.5, "dead": 1.5, "death": 1.5,
		"desperate": 1, "dread": 1, "escape": 1, "fear": 1.5, "fight": 1,
		"fire": 0.5, "flee": 1, "gasp": 1, "grab": 0.5, "gun": 1.5,
		"hide": 0.5, "hunt": 1, "kill": 1.5, "knife": 1.5, "panic": 1.5,
		"pain": 1, "race": 0.5, "run": 0.5, "scream": 1.5, "shadow": 0.5,
		"shout": 1, "silence": 0.5, "storm": 0.5, "strike": 1, "sword": 1,
		"terror": 1.5, "threat": 1.5, "trap": 1, "tremble": 1, "urgent": 1,
		"wound": 1, "betray": 1.5, "betrayal": 1.5, "secret": 0.5, "alarm": 1,
	}
	calmWords = map[string]float64{
		"calm": 1, "comfort": 1, "content": 0.5, "gentle": 1, "laugh": 0.5,
		"peace": 1, "quiet": 0.5, "relief": 1, "rest": 1, "safe": 1,
		"sleep": 0.5, "smile": 0.5, "soft": 0.5, "warm": 0.5,
	}
)

// Tension scores text on a 0-10 scale from the density of charged words,
// exclamations and short sentences. It is a lexical heuristic and only
// meant to track the trend across scenes.
func Tension(text string) int {
	words := words(text)
	if len(words) == 0 {
		return 0
	}

	var charge float64
	for _, w := range words {
		charge += tensionWords[stem(w)]
		charge -= calmWords[stem(w)]
	}
	per100 := charge * 100 / float64(len(words))

	exclaims := min(strings.Count(text, "!"), 6)

	short := 0
	sentences := sentences(text)
	for _, s := range sentences {
		if n := len(strings.Fields(s)); n > 0 && n <= 5 {
			short++
		}
	}
	shortRatio := 0.0
	if len(sentences) > 0 {
		shortRatio = float64(short) / float64(len(sentences))
	}

	score := 2 + per100*0.8 + float64(exclaims)*0.5 + shortRatio*2
	return int(math.Round(min(max(score, 0), 10)))
}

// Measure computes the lexical quality heuristics of a scene and its word count.
func Measure(text string) (world.Quality, int) {
	words := words(text)
	if len(words) == 0 {
		return world.Quality{}, 0
	}

	q := world.Quality{}
	sentences := sentences(text)
	q.SentenceCount = len(sentences)
	if q.SentenceCount > 0 {
		q.AvgSentenceLength = round2(float64(len(words)) / float64(q.SentenceCount))
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	q.LexicalDiversity = round2(float64(len(unique)) / float64(len(words)))
	q.DialogueRatio = round2(dialogueRatio(text))

	return q, len(words)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// stem strips the common inflections so "screamed" counts as "scream".
func stem(w string) string {
	w = strings.Trim(w, "'")
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if len(w) <= len(suffix)+2 || !strings.HasSuffix(w, suffix) {
			continue
		}
		base := strings.TrimSuffix(w, suffix)
		for _, candidate := range []string{base, base + "e"} {
			if known(candidate) {
				return candidate
			}
		}
	}
	return w
}

func known(w string) bool {
	_, tense := tensionWords[w]
	_, calm := calmWords[w]
	return tense || calm
}

func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(strings.Trim(p, "\"“”'’ \n\t")) != "" {
			out = append(out, p)
		}
	}
	return out
}

// dialogueRatio is the share of non-space characters inside quotation marks.
func dialogueRatio(text string) float64 {
	var total, quoted int
	inside := false
	for _, r := range text {
		switch r {
		case '"':
			inside = !inside
			continue
		case '“':
			inside = true
			continue
		case '”':
			inside = false
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if inside {
			quoted++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(quoted) / float64(total)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
