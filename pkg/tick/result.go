package tick

import (
	"time"

	"github.com/papercomputeco/chronicle/pkg/lore"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// State is a step of the tick state machine.
type State string

const (
	StateRetrieve     State = "RETRIEVE"
	StatePlan         State = "PLAN"
	StateValidate     State = "VALIDATE"
	StateExecuteTools State = "EXECUTE_TOOLS"
	StateGenerate     State = "GENERATE_PROSE"
	StateEvaluate     State = "EVALUATE"
	StateCommit       State = "COMMIT"
	StateExtract      State = "EXTRACT"
	StateLoreCheck    State = "LORE_CHECK"
	StateBeatCheck    State = "BEAT_CHECK"
	StateDone         State = "DONE"
)

// Fallback records a degraded path taken by a tick.
type Fallback struct {
	State  State  `json:"state"`
	Reason string `json:"reason"`
}

// StageError is a failure confined to one state. Post-commit failures end
// up here instead of failing the tick.
type StageError struct {
	State   State  `json:"state"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Rejection is a planner action refused during validation.
type Rejection struct {
	Index  int    `json:"index"`
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// Applied is an action staged during EXECUTE_TOOLS.
type Applied struct {
	Kind ActionKind `json:"kind"`
	IDs  []string   `json:"ids,omitempty"`
}

// BeatOutcome is what BEAT_CHECK did with the targeted beat.
type BeatOutcome struct {
	BeatID    string           `json:"beat_id"`
	Status    world.BeatStatus `json:"status"`
	Verified  bool             `json:"verified"`
	Rationale string           `json:"rationale,omitempty"`
}

// Result summarises one tick. Every fallback and post-commit failure is
// listed; none are silent.
type Result struct {
	Tick           int    `json:"tick"`
	SceneID        string `json:"scene_id,omitempty"`
	POVCharacterID string `json:"pov_character_id,omitempty"`
	Intention      string `json:"intention,omitempty"`
	WordCount      int    `json:"word_count"`

	Trace       []State      `json:"trace"`
	Fallbacks   []Fallback   `json:"fallbacks,omitempty"`
	StageErrors []StageError `json:"stage_errors,omitempty"`

	Applied  []Applied   `json:"applied,omitempty"`
	Rejected []Rejection `json:"rejected,omitempty"`

	GeneratedBeats []string    `json:"generated_beats,omitempty"`
	LoreIDs        []string    `json:"lore_ids,omitempty"`
	Contradictions []lore.Link `json:"contradictions,omitempty"`
	Beat           *BeatOutcome `json:"beat,omitempty"`

	Tension  int           `json:"tension"`
	Quality  world.Quality `json:"quality"`
	Degraded bool          `json:"degraded,omitempty"`

	EventID  string        `json:"event_id,omitempty"`
	Duration time.Duration `json:"duration"`
}

// State returns the last state entered.
func (r *Result) State() State {
	if len(r.Trace) == 0 {
		return ""
	}
	return r.Trace[len(r.Trace)-1]
}

// Committed reports whether the tick's scene was persisted.
func (r *Result) Committed() bool {
	return r.SceneID != ""
}

// ErrorIn returns the first error recorded for s, or nil.
func (r *Result) ErrorIn(s State) error {
	for _, e := range r.StageErrors {
		if e.State == s {
			return e.Err
		}
	}
	return nil
}

// FallbackStates lists the states that fell back, in order.
func (r *Result) FallbackStates() []string {
	out := make([]string, 0, len(r.Fallbacks))
	for _, f := range r.Fallbacks {
		out = append(out, string(f.State))
	}
	return out
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
}

func (r *Result) fail(s State, err error) {
	r.StageErrors = append(r.StageErrors, StageError{State: s, Message: err.Error(), Err: err})
}
