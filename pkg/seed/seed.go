// Package seed loads an initial world from a YAML file.
//
// Seed entries refer to each other by local keys; the keys are resolved to
// allocated IDs while the world is created in a single tick-0 transaction.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var (
	// ErrNotEmpty is returned when seeding a store that already holds a world.
	ErrNotEmpty = errors.New("world already seeded")

	// ErrUnknownKey is returned for references to undeclared seed keys.
	ErrUnknownKey = errors.New("unknown seed key")
)

// World is the seed file.
type World struct {
	Locations     []Location     `yaml:"locations"`
	Characters    []Character    `yaml:"characters"`
	Relationships []Relationship `yaml:"relationships"`
	Lore          []Lore         `yaml:"lore"`
	Beats         []Beat         `yaml:"beats"`
}

type Location struct {
	Key        string   `yaml:"key"`
	Name       string   `yaml:"name"`
	Atmosphere string   `yaml:"atmosphere"`
	Sensory    []string `yaml:"sensory"`
	Tags       []string `yaml:"tags"`
}

type Character struct {
	Key         string   `yaml:"key"`
	FirstName   string   `yaml:"first_name"`
	FamilyName  string   `yaml:"family_name"`
	Title       string   `yaml:"title"`
	Nicknames   []string `yaml:"nicknames"`
	Description string   `yaml:"description"`
	Emotional   string   `yaml:"emotional"`
	Physical    string   `yaml:"physical"`
	Location    string   `yaml:"location"`
	Inventory   []string `yaml:"inventory"`
	Tags        []string `yaml:"tags"`
}

type Relationship struct {
	Source   string  `yaml:"source"`
	Target   string  `yaml:"target"`
	Type     string  `yaml:"type"`
	Strength float64 `yaml:"strength"`

	// Mirrored defaults to true.
	Mirrored *bool    `yaml:"mirrored"`
	Tags     []string `yaml:"tags"`
}

type Lore struct {
	Content    string   `yaml:"content"`
	Type       string   `yaml:"type"`
	Category   string   `yaml:"category"`
	Importance string   `yaml:"importance"`
	Tags       []string `yaml:"tags"`
}

type Beat struct {
	Description   string   `yaml:"description"`
	Characters    []string `yaml:"characters"`
	Location      string   `yaml:"location"`
	TensionTarget int      `yaml:"tension_target"`
	Tags          []string `yaml:"tags"`
}

// Result maps seed keys to the IDs they were created under.
type Result struct {
	Keys    map[string]string
	Created []string
}

// Parse decodes a seed file. Unknown fields are rejected.
func Parse(r io.Reader) (*World, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	w := &World{}
	if err := dec.Decode(w); err != nil {
		if errors.Is(err, io.EOF) {
			return w, nil
		}
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return w, nil
}

// Load reads and parses the seed file at path.
func Load(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Apply creates w in one transaction stamped with tick 0. Nothing is written
// if any entry is invalid.
func Apply(ctx context.Context, s *store.Store, w *World) (*Result, error) {
	counts := s.Counts()
	if s.Tick() != 0 || counts[world.KindCharacter] > 0 || counts[world.KindLocation] > 0 {
		return nil, ErrNotEmpty
	}

	tx := s.Begin(0)
	defer tx.Discard()

	res := &Result{Keys: make(map[string]string)}
	bind := func(key, id string) error {
		if key == "" {
			return nil
		}
		if _, dup := res.Keys[key]; dup {
			return fmt.Errorf("seed key %q declared twice", key)
		}
		res.Keys[key] = id
		return nil
	}
	resolve := func(key string) (string, error) {
		if key == "" {
			return "", nil
		}
		id, ok := res.Keys[key]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		return id, nil
	}

	for n, l := range w.Locations {
		id, err := tx.Create(&world.Location{
			Meta:       world.Meta{Tags: l.Tags},
			Name:       l.Name,
			Atmosphere: l.Atmosphere,
			Sensory:    l.Sensory,
		})
		if err != nil {
			return nil, fmt.Errorf("seeding location %d: %w", n+1, err)
		}
		if err := bind(l.Key, id); err != nil {
			return nil, err
		}
	}

	occupants := make(map[string][]string)
	for n, c := range w.Characters {
		loc, err := resolve(c.Location)
		if err != nil {
			return nil, fmt.Errorf("seeding character %d: %w", n+1, err)
		}
		id, err := tx.Create(&world.Character{
			Meta:        world.Meta{Tags: c.Tags},
			FirstName:   c.FirstName,
			FamilyName:  c.FamilyName,
			Title:       c.Title,
			Nicknames:   c.Nicknames,
			Description: c.Description,
			State: world.CharacterState{
				Emotional:  c.Emotional,
				Physical:   c.Physical,
				LocationID: loc,
				Inventory:  c.Inventory,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("seeding character %d: %w", n+1, err)
		}
		if err := bind(c.Key, id); err != nil {
			return nil, err
		}
		if loc != "" {
			occupants[loc] = append(occupants[loc], id)
		}
	}
	for _, l := range w.Locations {
		id := res.Keys[l.Key]
		if ids := occupants[id]; id != "" && len(ids) > 0 {
			if err := tx.Update(id, world.Patch{"occupants": ids}); err != nil {
				return nil, err
			}
		}
	}

	for n, r := range w.Relationships {
		src, err := resolve(r.Source)
		if err != nil {
			return nil, fmt.Errorf("seeding relationship %d: %w", n+1, err)
		}
		dst, err := resolve(r.Target)
		if err != nil {
			return nil, fmt.Errorf("seeding relationship %d: %w", n+1, err)
		}
		mirrored := r.Mirrored == nil || *r.Mirrored
		_, err = tx.CreateRelationship(&world.Relationship{
			Meta:     world.Meta{Tags: r.Tags},
			SourceID: src,
			TargetID: dst,
			Type:     r.Type,
			Strength: r.Strength,
		}, mirrored)
		if err != nil {
			return nil, fmt.Errorf("seeding relationship %d: %w", n+1, err)
		}
	}

	for n, l := range w.Lore {
		_, err := tx.Create(&world.LoreItem{
			Meta:       world.Meta{Tags: l.Tags},
			Content:    l.Content,
			Type:       world.ParseLoreType(l.Type),
			Category:   world.ParseLoreCategory(l.Category),
			Importance: world.ParseImportance(l.Importance),
		})
		if err != nil {
			return nil, fmt.Errorf("seeding lore %d: %w", n+1, err)
		}
	}

	for n, b := range w.Beats {
		chars := make([]string, 0, len(b.Characters))
		for _, key := range b.Characters {
			id, err := resolve(key)
			if err != nil {
				return nil, fmt.Errorf("seeding beat %d: %w", n+1, err)
			}
			chars = append(chars, id)
		}
		loc, err := resolve(b.Location)
		if err != nil {
			return nil, fmt.Errorf("seeding beat %d: %w", n+1, err)
		}
		_, err = tx.Create(&world.PlotBeat{
			Meta:               world.Meta{Tags: b.Tags},
			Description:        b.Description,
			RequiredCharacters: chars,
			RequiredLocation:   loc,
			TensionTarget:      b.TensionTarget,
			Status:             world.BeatPending,
		})
		if err != nil {
			return nil, fmt.Errorf("seeding beat %d: %w", n+1, err)
		}
	}

	res.Created = tx.Created()
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("seeding world: %w", err)
	}
	return res, nil
}
