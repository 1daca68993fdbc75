package world

import (
	"fmt"
	"slices"
)

// BeatStatus is the lifecycle state of a plot beat.
type BeatStatus string

const (
	BeatPending   BeatStatus = "pending"
	BeatCompleted BeatStatus = "completed"
	BeatSkipped   BeatStatus = "skipped"
)

// Valid reports whether s is a known status.
func (s BeatStatus) Valid() bool {
	return s == BeatPending || s == BeatCompleted || s == BeatSkipped
}

// PlotBeat is a planned narrative goal a future scene should accomplish.
type PlotBeat struct {
	Meta

	Description        string     `json:"description"`
	RequiredCharacters []string   `json:"required_characters,omitempty"`
	RequiredLocation   string     `json:"required_location,omitempty"`
	TensionTarget      int        `json:"tension_target"`
	Status             BeatStatus `json:"status"`
	ExecutedInScene    string     `json:"executed_in_scene,omitempty"`
	ExecutionNotes     string     `json:"execution_notes,omitempty"`
}

// Kind implements Entity.
func (b *PlotBeat) Kind() Kind { return KindBeat }

// Validate implements Entity.
func (b *PlotBeat) Validate() error {
	switch {
	case b.Description == "":
		return fmt.Errorf("%w: beat has no description", ErrInvalid)
	case b.TensionTarget < 0 || b.TensionTarget > 10:
		return fmt.Errorf("%w: beat tension target %d outside 0-10", ErrInvalid, b.TensionTarget)
	case !b.Status.Valid():
		return fmt.Errorf("%w: beat status %q", ErrInvalid, b.Status)
	case b.Status != BeatCompleted && b.ExecutedInScene != "":
		return fmt.Errorf("%w: beat %s has an executing scene but is %s", ErrInvalid, b.ID, b.Status)
	}
	return nil
}

// Requires reports whether the beat names the character.
func (b *PlotBeat) Requires(characterID string) bool {
	return slices.Contains(b.RequiredCharacters, characterID)
}

// Set implements Entity.
func (b *PlotBeat) Set(field string, value any) (string, string, error) {
	switch field {
	case "description":
		return setString(field, &b.Description, value)
	case "status":
		s, err := asString(field, value)
		if err != nil {
			return "", "", err
		}
		status := BeatStatus(s)
		if !status.Valid() {
			return "", "", fmt.Errorf("%w: beat status %q", ErrInvalid, s)
		}
		old := string(b.Status)
		b.Status = status
		return old, s, nil
	case "executed_in_scene":
		return setString(field, &b.ExecutedInScene, value)
	case "execution_notes":
		return setString(field, &b.ExecutionNotes, value)
	case "tension_target":
		f, err := asFloat(field, value)
		if err != nil {
			return "", "", err
		}
		old := render(b.TensionTarget)
		b.TensionTarget = int(f)
		return old, render(b.TensionTarget), nil
	case "tags":
		return b.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindBeat, Field: field}
}
