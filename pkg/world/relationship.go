package world

import "fmt"

// Relationship is a directed link between two characters.
type Relationship struct {
	Meta

	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// Kind implements Entity.
func (r *Relationship) Kind() Kind { return KindRelationship }

// Validate implements Entity.
func (r *Relationship) Validate() error {
	switch {
	case r.SourceID == "" || r.TargetID == "":
		return fmt.Errorf("%w: relationship needs both endpoints", ErrInvalid)
	case r.SourceID == r.TargetID:
		return fmt.Errorf("%w: relationship %s links a character to itself", ErrInvalid, r.SourceID)
	case r.Strength < -1 || r.Strength > 1:
		return fmt.Errorf("%w: relationship strength %.2f outside [-1, 1]", ErrInvalid, r.Strength)
	}
	return nil
}

// Inverse returns the mirrored relationship with no ID assigned.
func (r *Relationship) Inverse() *Relationship {
	return &Relationship{
		Meta:     Meta{Tags: append([]string(nil), r.Tags...)},
		SourceID: r.TargetID,
		TargetID: r.SourceID,
		Type:     r.Type,
		Strength: r.Strength,
	}
}

// Set implements Entity.
func (r *Relationship) Set(field string, value any) (string, string, error) {
	switch field {
	case "type":
		return setString(field, &r.Type, value)
	case "strength":
		f, err := asFloat(field, value)
		if err != nil {
			return "", "", err
		}
		if f < -1 || f > 1 {
			return "", "", fmt.Errorf("%w: strength %.2f outside [-1, 1]", ErrInvalid, f)
		}
		old := render(r.Strength)
		r.Strength = f
		return old, render(r.Strength), nil
	case "tags":
		return r.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindRelationship, Field: field}
}
