package world

import "fmt"

// Location is a place in the world.
type Location struct {
	Meta

	Name       string   `json:"name"`
	Atmosphere string   `json:"atmosphere,omitempty"`
	Sensory    []string `json:"sensory,omitempty"`
	Occupants  []string `json:"occupants,omitempty"`
}

// Kind implements Entity.
func (l *Location) Kind() Kind { return KindLocation }

// Validate implements Entity.
func (l *Location) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("%w: location needs a name", ErrInvalid)
	}
	return nil
}

// Set implements Entity.
func (l *Location) Set(field string, value any) (string, string, error) {
	switch field {
	case "name":
		return setString(field, &l.Name, value)
	case "atmosphere":
		return setString(field, &l.Atmosphere, value)
	case "sensory":
		return setStrings(field, &l.Sensory, value)
	case "occupants":
		return setStrings(field, &l.Occupants, value)
	case "tags":
		return l.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindLocation, Field: field}
}
