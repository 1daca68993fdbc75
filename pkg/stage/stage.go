// Package stage is the boundary to the external text and plan generator.
//
// The orchestrator sends a Request naming a stage and receives a Response
// with the stage-specific fields populated. Responses are untrusted: the
// generator may be non-deterministic and the caller validates everything it
// receives.
package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Stage names a generation step.
type Stage string

const (
	// Outline drafts new plot beats.
	Outline Stage = "outline"

	// Plan proposes tool actions and the scene intention.
	Plan Stage = "plan"

	// Write produces scene prose.
	Write Stage = "write"

	// Extract pulls lore records out of committed prose.
	Extract Stage = "extract"

	// Verify judges whether a scene accomplished a beat.
	Verify Stage = "verify"
)

var (
	// ErrGeneration is returned when the generator fails or returns no output.
	ErrGeneration = errors.New("generation failed")

	// ErrMalformed is returned when the output does not have the expected
	// structure. It wraps ErrGeneration.
	ErrMalformed = fmt.Errorf("%w: malformed response", ErrGeneration)
)

// Request is sent to the generator.
type Request struct {
	Stage        Stage  `json:"stage"`
	Context      string `json:"context"`
	Instructions string `json:"instructions,omitempty"`
}

// RawAction is an unvalidated tool invocation proposed by the planner.
type RawAction struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

// PlanResult is the planner's output.
type PlanResult struct {
	Rationale      string      `json:"rationale"`
	Actions        []RawAction `json:"actions"`
	SceneIntention string      `json:"scene_intention"`
	POVCharacterID string      `json:"pov_character_id,omitempty"`
}

// Record is one extracted lore record.
type Record struct {
	Content    string `json:"content"`
	Type       string `json:"type"`
	Category   string `json:"category"`
	Importance string `json:"importance,omitempty"`
}

// Verdict is the outcome of beat verification.
type Verdict struct {
	Accomplished bool   `json:"accomplished"`
	Rationale    string `json:"rationale,omitempty"`
}

// BeatDraft is a proposed plot beat.
type BeatDraft struct {
	Description        string   `json:"description"`
	RequiredCharacters []string `json:"required_characters,omitempty"`
	RequiredLocation   string   `json:"required_location,omitempty"`
	TensionTarget      int      `json:"tension_target"`
}

// Response carries the fields for the requested stage; the others are empty.
type Response struct {
	Plan    *PlanResult `json:"plan,omitempty"`
	Prose   string      `json:"prose,omitempty"`
	Records []Record    `json:"records,omitempty"`
	Verdict *Verdict    `json:"verdict,omitempty"`
	Beats   []BeatDraft `json:"beats,omitempty"`
}

// Generator produces stage output. Implementations must honour ctx
// cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Action builds a RawAction, marshalling args.
func Action(tool string, args any) RawAction {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("stage: marshalling %s args: %v", tool, err))
	}
	return RawAction{Tool: tool, Args: raw}
}
