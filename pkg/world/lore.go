package world

import (
	"fmt"
	"slices"
	"strings"
)

// LoreType classifies what kind of claim a lore item makes.
type LoreType string

const (
	LoreRule       LoreType = "rule"
	LoreConstraint LoreType = "constraint"
	LoreFact       LoreType = "fact"
	LoreCapability LoreType = "capability"
	LoreLimitation LoreType = "limitation"
)

// LoreCategory is the domain a lore item belongs to.
type LoreCategory string

const (
	CategoryMagic      LoreCategory = "magic"
	CategoryTechnology LoreCategory = "technology"
	CategorySociety    LoreCategory = "society"
	CategoryGeography  LoreCategory = "geography"
	CategoryBiology    LoreCategory = "biology"
	CategoryPhysics    LoreCategory = "physics"
	CategoryOther      LoreCategory = "other"
)

// Importance ranks lore items.
type Importance string

const (
	ImportanceCritical  Importance = "critical"
	ImportanceImportant Importance = "important"
	ImportanceNormal    Importance = "normal"
	ImportanceMinor     Importance = "minor"
)

var (
	loreTypes      = []LoreType{LoreRule, LoreConstraint, LoreFact, LoreCapability, LoreLimitation}
	loreCategories = []LoreCategory{CategoryMagic, CategoryTechnology, CategorySociety, CategoryGeography, CategoryBiology, CategoryPhysics, CategoryOther}
	importances    = []Importance{ImportanceCritical, ImportanceImportant, ImportanceNormal, ImportanceMinor}
)

func (t LoreType) Valid() bool     { return slices.Contains(loreTypes, t) }
func (c LoreCategory) Valid() bool { return slices.Contains(loreCategories, c) }
func (i Importance) Valid() bool   { return slices.Contains(importances, i) }

// ParseLoreType is lenient: unrecognised values become fact.
func ParseLoreType(s string) LoreType {
	t := LoreType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return LoreFact
	}
	return t
}

// ParseLoreCategory is lenient: unrecognised values become other.
func ParseLoreCategory(s string) LoreCategory {
	c := LoreCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return CategoryOther
	}
	return c
}

// ParseImportance is lenient: unrecognised values become normal.
func ParseImportance(s string) Importance {
	i := Importance(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return ImportanceNormal
	}
	return i
}

// LoreItem is an extracted world fact used for consistency checking.
type LoreItem struct {
	Meta

	Content       string       `json:"content"`
	Type          LoreType     `json:"type"`
	Category      LoreCategory `json:"category"`
	Importance    Importance   `json:"importance"`
	SourceSceneID string       `json:"source_scene_id,omitempty"`
	Contradicts   []string     `json:"contradicts,omitempty"`
}

// Kind implements Entity.
func (l *LoreItem) Kind() Kind { return KindLore }

// Validate implements Entity.
func (l *LoreItem) Validate() error {
	switch {
	case strings.TrimSpace(l.Content) == "":
		return fmt.Errorf("%w: lore item has no content", ErrInvalid)
	case !l.Type.Valid():
		return fmt.Errorf("%w: lore type %q", ErrInvalid, l.Type)
	case !l.Category.Valid():
		return fmt.Errorf("%w: lore category %q", ErrInvalid, l.Category)
	case !l.Importance.Valid():
		return fmt.Errorf("%w: lore importance %q", ErrInvalid, l.Importance)
	}
	return nil
}

// ContradictsWith reports whether id is linked as a contradiction.
func (l *LoreItem) ContradictsWith(id string) bool {
	return slices.Contains(l.Contradicts, id)
}

// Set implements Entity.
func (l *LoreItem) Set(field string, value any) (string, string, error) {
	switch field {
	case "content":
		return setString(field, &l.Content, value)
	case "importance":
		s, err := asString(field, value)
		if err != nil {
			return "", "", err
		}
		imp := Importance(s)
		if !imp.Valid() {
			return "", "", fmt.Errorf("%w: lore importance %q", ErrInvalid, s)
		}
		old := string(l.Importance)
		l.Importance = imp
		return old, s, nil
	case "contradicts":
		ids, err := asStrings(field, value)
		if err != nil {
			return "", "", err
		}
		old := render(l.Contradicts)
		ids = slices.Clone(ids)
		slices.Sort(ids)
		l.Contradicts = slices.Compact(ids)
		if len(l.Contradicts) == 0 {
			l.Contradicts = nil
		}
		return old, render(l.Contradicts), nil
	case "tags":
		return l.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindLore, Field: field}
}
