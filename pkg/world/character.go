package world

import (
	"fmt"
	"strings"
)

// Audience selects which character identity a consumer receives.
type Audience int

const (
	// AudienceProse is used for writer-facing text and receives display names.
	AudienceProse Audience = iota

	// AudiencePlanning is used for planner-facing text and receives full names.
	AudiencePlanning
)

func (a Audience) String() string {
	if a == AudiencePlanning {
		return "planning"
	}
	return "prose"
}

// Character is a person in the world.
type Character struct {
	Meta

	FirstName   string         `json:"first_name"`
	FamilyName  string         `json:"family_name"`
	Title       string         `json:"title,omitempty"`
	Nicknames   []string       `json:"nicknames,omitempty"`
	Description string         `json:"description,omitempty"`
	State       CharacterState `json:"state"`
}

// CharacterState is the mutable state bag of a character.
type CharacterState struct {
	Emotional  string   `json:"emotional,omitempty"`
	Physical   string   `json:"physical,omitempty"`
	LocationID string   `json:"location_id,omitempty"`
	Inventory  []string `json:"inventory,omitempty"`
}

// Kind implements Entity.
func (c *Character) Kind() Kind { return KindCharacter }

// FullName joins title, first and family name, skipping empty parts.
func (c *Character) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Title, c.FirstName, c.FamilyName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// DisplayName is the first name when present, else the full name.
func (c *Character) DisplayName() string {
	if first := strings.TrimSpace(c.FirstName); first != "" {
		return first
	}
	return c.FullName()
}

// NameFor returns the identity appropriate for the audience.
func (c *Character) NameFor(a Audience) string {
	if a == AudiencePlanning {
		return c.FullName()
	}
	return c.DisplayName()
}

// NameKey normalises a full name for uniqueness comparisons.
func NameKey(fullName string) string {
	return strings.ToLower(strings.Join(strings.Fields(fullName), " "))
}

// Validate implements Entity.
func (c *Character) Validate() error {
	if c.FullName() == "" {
		return fmt.Errorf("%w: character needs a name", ErrInvalid)
	}
	return nil
}

// NameFields lists the fields that contribute to the full name.
var NameFields = []string{"first_name", "family_name", "title"}

// Set implements Entity.
func (c *Character) Set(field string, value any) (string, string, error) {
	switch field {
	case "first_name":
		return setString(field, &c.FirstName, value)
	case "family_name":
		return setString(field, &c.FamilyName, value)
	case "title":
		return setString(field, &c.Title, value)
	case "description":
		return setString(field, &c.Description, value)
	case "nicknames":
		return setStrings(field, &c.Nicknames, value)
	case "state.emotional", "emotional":
		return setString(field, &c.State.Emotional, value)
	case "state.physical", "physical":
		return setString(field, &c.State.Physical, value)
	case "state.location_id", "location_id":
		return setString(field, &c.State.LocationID, value)
	case "state.inventory", "inventory":
		return setStrings(field, &c.State.Inventory, value)
	case "tags":
		return c.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindCharacter, Field: field}
}
