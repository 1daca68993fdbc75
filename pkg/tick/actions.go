package tick

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// ActionKind names a planner tool.
type ActionKind string

const (
	KindGenerateCharacter  ActionKind = "character.generate"
	KindUpdateCharacter    ActionKind = "character.update"
	KindMoveCharacter      ActionKind = "character.move"
	KindGenerateLocation   ActionKind = "location.generate"
	KindCreateRelationship ActionKind = "relationship.create"
	KindAdjustRelationship ActionKind = "relationship.adjust"
)

var (
	// ErrUnknownTool is returned by Decode for a tool outside the action set.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArgs is returned when an action's arguments are unusable.
	ErrInvalidArgs = errors.New("invalid action arguments")
)

// Action is one planner tool call. The set is closed: only the types in this
// package implement it.
type Action interface {
	Kind() ActionKind

	// validate checks references and uniqueness against the pre-tick state
	// plus what earlier accepted actions in the same plan introduce.
	validate(v *validation) error

	// apply stages the action in tx and returns the IDs it created or changed.
	apply(tx *store.Tx) ([]string, error)
}

var registry = map[ActionKind]func() Action{
	KindGenerateCharacter:  func() Action { return &GenerateCharacter{} },
	KindUpdateCharacter:    func() Action { return &UpdateCharacter{} },
	KindMoveCharacter:      func() Action { return &MoveCharacter{} },
	KindGenerateLocation:   func() Action { return &GenerateLocation{} },
	KindCreateRelationship: func() Action { return &CreateRelationship{} },
	KindAdjustRelationship: func() Action { return &AdjustRelationship{} },
}

// SupportedActions lists every action kind, sorted.
func SupportedActions() []ActionKind {
	kinds := make([]ActionKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Decode turns a raw planner action into a typed Action.
func Decode(raw stage.RawAction) (Action, error) {
	newAction, ok := registry[ActionKind(strings.TrimSpace(raw.Tool))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, raw.Tool)
	}

	a := newAction()
	if len(raw.Args) > 0 {
		if err := json.Unmarshal(raw.Args, a); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArgs, raw.Tool, err)
		}
	}
	return a, nil
}

// validation carries the state a plan is validated against.
type validation struct {
	r store.Reader

	// names holds the full-name keys claimed by earlier accepted actions.
	names map[string]string
	fresh int

	// characters holds characters as earlier accepted updates leave them.
	characters map[string]*world.Character
}

func newValidation(r store.Reader) *validation {
	return &validation{
		r:          r,
		names:      make(map[string]string),
		characters: make(map[string]*world.Character),
	}
}

// character returns id as the plan so far leaves it.
func (v *validation) character(id string) (*world.Character, error) {
	if c, ok := v.characters[id]; ok {
		return c, nil
	}
	return store.GetAs[*world.Character](v.r, id)
}

// claim reserves fullName for owner, failing when a live character or an
// earlier action in the plan already holds it.
func (v *validation) claim(fullName, owner string) error {
	key := world.NameKey(fullName)
	if existing, ok := v.r.CharacterByName(fullName); ok && existing.ID != owner {
		return world.DuplicateEntityError{Kind: world.KindCharacter, Key: fullName, ExistingID: existing.ID}
	}
	if prev, ok := v.names[key]; ok && prev != owner {
		return world.DuplicateEntityError{Kind: world.KindCharacter, Key: fullName, ExistingID: prev}
	}
	v.names[key] = owner
	return nil
}

// GenerateCharacter creates a new character.
type GenerateCharacter struct {
	FirstName   string   `json:"first_name"`
	FamilyName  string   `json:"family_name"`
	Title       string   `json:"title,omitempty"`
	Nicknames   []string `json:"nicknames,omitempty"`
	Description string   `json:"description,omitempty"`
	Emotional   string   `json:"emotional,omitempty"`
	Physical    string   `json:"physical,omitempty"`
	LocationID  string   `json:"location_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (a *GenerateCharacter) Kind() ActionKind { return KindGenerateCharacter }

func (a *GenerateCharacter) character() *world.Character {
	return &world.Character{
		Meta:        world.Meta{Tags: a.Tags},
		FirstName:   strings.TrimSpace(a.FirstName),
		FamilyName:  strings.TrimSpace(a.FamilyName),
		Title:       strings.TrimSpace(a.Title),
		Nicknames:   a.Nicknames,
		Description: a.Description,
		State: world.CharacterState{
			Emotional:  a.Emotional,
			Physical:   a.Physical,
			LocationID: a.LocationID,
		},
	}
}

func (a *GenerateCharacter) validate(v *validation) error {
	c := a.character()
	if err := c.Validate(); err != nil {
		return err
	}
	if a.LocationID != "" {
		if _, err := store.GetAs[*world.Location](v.r, a.LocationID); err != nil {
			return err
		}
	}
	v.fresh++
	return v.claim(c.FullName(), fmt.Sprintf("new#%d", v.fresh))
}

func (a *GenerateCharacter) apply(tx *store.Tx) ([]string, error) {
	id, err := tx.Create(a.character())
	if err != nil {
		return nil, err
	}
	ids := []string{id}

	if a.LocationID != "" {
		if err := addOccupant(tx, a.LocationID, id); err != nil {
			return nil, err
		}
		ids = append(ids, a.LocationID)
	}
	return ids, nil
}

// updatableFields are the character fields character.update may set.
// Location changes go through character.move so occupants stay in sync.
var updatableFields = []string{
	"first_name", "family_name", "title", "nicknames", "description",
	"emotional", "physical", "inventory", "tags",
	"state.emotional", "state.physical", "state.inventory",
}

// UpdateCharacter patches fields of an existing character.
type UpdateCharacter struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (a *UpdateCharacter) Kind() ActionKind { return KindUpdateCharacter }

func (a *UpdateCharacter) validate(v *validation) error {
	c, err := v.character(a.ID)
	if err != nil {
		return err
	}
	if len(a.Fields) == 0 {
		return fmt.Errorf("%w: no fields to update on %s", ErrInvalidArgs, a.ID)
	}
	for field := range a.Fields {
		if !slices.Contains(updatableFields, field) {
			return fmt.Errorf("%w: character.update cannot set %q", ErrInvalidArgs, field)
		}
	}

	next := world.Clone(c)
	if err := world.Apply(next, world.Patch(a.Fields), v.r.Tick()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	for _, f := range world.NameFields {
		if _, ok := a.Fields[f]; ok {
			if err := v.claim(next.FullName(), next.ID); err != nil {
				return err
			}
			break
		}
	}

	v.characters[next.ID] = next
	return nil
}

func (a *UpdateCharacter) apply(tx *store.Tx) ([]string, error) {
	if err := tx.Update(a.ID, world.Patch(a.Fields)); err != nil {
		return nil, err
	}
	return []string{a.ID}, nil
}

// MoveCharacter moves a character to another location.
type MoveCharacter struct {
	ID         string `json:"id"`
	LocationID string `json:"location_id"`
}

func (a *MoveCharacter) Kind() ActionKind { return KindMoveCharacter }

func (a *MoveCharacter) validate(v *validation) error {
	if _, err := store.GetAs[*world.Character](v.r, a.ID); err != nil {
		return err
	}
	_, err := store.GetAs[*world.Location](v.r, a.LocationID)
	return err
}

func (a *MoveCharacter) apply(tx *store.Tx) ([]string, error) {
	c, err := store.GetAs[*world.Character](tx, a.ID)
	if err != nil {
		return nil, err
	}
	from := c.State.LocationID
	if from == a.LocationID {
		return nil, nil
	}

	ids := []string{a.ID, a.LocationID}
	if from != "" {
		if err := removeOccupant(tx, from, a.ID); err != nil {
			return nil, err
		}
		ids = append(ids, from)
	}
	if err := tx.Update(a.ID, world.Patch{"location_id": a.LocationID}); err != nil {
		return nil, err
	}
	if err := addOccupant(tx, a.LocationID, a.ID); err != nil {
		return nil, err
	}
	return ids, nil
}

// GenerateLocation creates a new location.
type GenerateLocation struct {
	Name       string   `json:"name"`
	Atmosphere string   `json:"atmosphere,omitempty"`
	Sensory    []string `json:"sensory,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (a *GenerateLocation) Kind() ActionKind { return KindGenerateLocation }

func (a *GenerateLocation) location() *world.Location {
	return &world.Location{
		Meta:       world.Meta{Tags: a.Tags},
		Name:       strings.TrimSpace(a.Name),
		Atmosphere: a.Atmosphere,
		Sensory:    a.Sensory,
	}
}

func (a *GenerateLocation) validate(_ *validation) error {
	return a.location().Validate()
}

func (a *GenerateLocation) apply(tx *store.Tx) ([]string, error) {
	id, err := tx.Create(a.location())
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// CreateRelationship links two characters, mirrored unless Mirrored is false.
type CreateRelationship struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
	Mirrored *bool   `json:"mirrored,omitempty"`
}

func (a *CreateRelationship) Kind() ActionKind { return KindCreateRelationship }

func (a *CreateRelationship) relationship() *world.Relationship {
	return &world.Relationship{
		SourceID: a.SourceID,
		TargetID: a.TargetID,
		Type:     strings.TrimSpace(a.Type),
		Strength: a.Strength,
	}
}

func (a *CreateRelationship) validate(v *validation) error {
	r := a.relationship()
	if r.Type == "" {
		return fmt.Errorf("%w: relationship needs a type", ErrInvalidArgs)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	for _, id := range []string{a.SourceID, a.TargetID} {
		if _, err := store.GetAs[*world.Character](v.r, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *CreateRelationship) apply(tx *store.Tx) ([]string, error) {
	mirrored := a.Mirrored == nil || *a.Mirrored
	return tx.CreateRelationship(a.relationship(), mirrored)
}

// AdjustRelationship shifts a relationship's strength, clamped to [-1, 1],
// and optionally retypes it. A mirrored inverse is adjusted with it.
type AdjustRelationship struct {
	ID    string  `json:"id"`
	Delta float64 `json:"delta"`
	Type  string  `json:"type,omitempty"`
}

func (a *AdjustRelationship) Kind() ActionKind { return KindAdjustRelationship }

func (a *AdjustRelationship) validate(v *validation) error {
	if _, err := store.GetAs[*world.Relationship](v.r, a.ID); err != nil {
		return err
	}
	if math.IsNaN(a.Delta) || math.IsInf(a.Delta, 0) {
		return fmt.Errorf("%w: delta must be finite", ErrInvalidArgs)
	}
	if a.Delta == 0 && strings.TrimSpace(a.Type) == "" {
		return fmt.Errorf("%w: relationship.adjust changes nothing", ErrInvalidArgs)
	}
	return nil
}

func (a *AdjustRelationship) apply(tx *store.Tx) ([]string, error) {
	r, err := store.GetAs[*world.Relationship](tx, a.ID)
	if err != nil {
		return nil, err
	}

	rels := []*world.Relationship{r}
	if inv, ok := store.MirrorOf(tx, r); ok {
		rels = append(rels, inv)
	}

	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		patch := world.Patch{"strength": min(max(rel.Strength+a.Delta, -1), 1)}
		if t := strings.TrimSpace(a.Type); t != "" {
			patch["type"] = t
		}
		if err := tx.Update(rel.ID, patch); err != nil {
			return nil, err
		}
		ids = append(ids, rel.ID)
	}
	return ids, nil
}

func addOccupant(tx *store.Tx, locationID, characterID string) error {
	l, err := store.GetAs[*world.Location](tx, locationID)
	if err != nil {
		return err
	}
	if slices.Contains(l.Occupants, characterID) {
		return nil
	}
	return tx.Update(locationID, world.Patch{"occupants": append(slices.Clone(l.Occupants), characterID)})
}

func removeOccupant(tx *store.Tx, locationID, characterID string) error {
	l, err := store.GetAs[*world.Location](tx, locationID)
	if err != nil {
		// the old location may never have listed the character
		return nil
	}
	if !slices.Contains(l.Occupants, characterID) {
		return nil
	}
	rest := slices.DeleteFunc(slices.Clone(l.Occupants), func(id string) bool { return id == characterID })
	return tx.Update(locationID, world.Patch{"occupants": rest})
}

var (
	_ Action = (*GenerateCharacter)(nil)
	_ Action = (*UpdateCharacter)(nil)
	_ Action = (*MoveCharacter)(nil)
	_ Action = (*GenerateLocation)(nil)
	_ Action = (*CreateRelationship)(nil)
	_ Action = (*AdjustRelationship)(nil)
)
