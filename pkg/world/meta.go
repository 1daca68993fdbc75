package world

import (
	"encoding/json"
	"slices"
	"strings"
)

// Entity is implemented by every persistent world record.
type Entity interface {
	// Kind returns the entity's type.
	Kind() Kind

	// Base exposes the shared identity, history and tag fields.
	Base() *Meta

	// Validate checks intrinsic field constraints. Cross-entity references
	// are checked by the store.
	Validate() error

	// Set assigns a single named field and returns the previous and new
	// values rendered for the history log.
	Set(field string, value any) (old, updated string, err error)
}

// Meta carries the fields shared by all entities.
type Meta struct {
	ID          string   `json:"id"`
	CreatedTick int      `json:"created_tick"`
	History     []Change `json:"history,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Change is one entry of an entity's mutation history.
type Change struct {
	Tick  int    `json:"tick"`
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Base returns m.
func (m *Meta) Base() *Meta { return m }

// Record appends a history entry.
func (m *Meta) Record(tick int, field, old, updated string) {
	m.History = append(m.History, Change{Tick: tick, Field: field, Old: old, New: updated})
}

// HasTag reports whether the tag set contains tag.
func (m *Meta) HasTag(tag string) bool {
	return slices.Contains(m.Tags, normalizeTag(tag))
}

// SetTags replaces the tag set. Tags are lower-cased, de-duplicated and sorted.
func (m *Meta) SetTags(tags []string) {
	m.Tags = normalizeTags(tags)
}

func (m *Meta) setTagsField(value any) (string, string, error) {
	tags, err := asStrings("tags", value)
	if err != nil {
		return "", "", err
	}
	old := render(m.Tags)
	m.SetTags(tags)
	return old, render(m.Tags), nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = normalizeTag(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// render formats a field value for the history log.
func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
