package world

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Patch maps field names to new values. Values may be Go types or
// decoded JSON (float64, []any).
type Patch map[string]any

// Fields returns the patched field names in a stable order.
func (p Patch) Fields() []string {
	return slices.Sorted(maps.Keys(p))
}

// Apply sets every field of p on e and records one history entry per field
// whose rendered value changed.
func Apply(e Entity, p Patch, tick int) error {
	for _, field := range p.Fields() {
		old, updated, err := e.Set(field, p[field])
		if err != nil {
			return err
		}
		if old != updated {
			e.Base().Record(tick, field, old, updated)
		}
	}
	return nil
}

// New returns an empty entity of the given kind.
func New(kind Kind) (Entity, error) {
	switch kind {
	case KindCharacter:
		return &Character{}, nil
	case KindLocation:
		return &Location{}, nil
	case KindRelationship:
		return &Relationship{}, nil
	case KindLore:
		return &LoreItem{}, nil
	case KindBeat:
		return &PlotBeat{}, nil
	case KindScene:
		return &Scene{}, nil
	case KindCheckpoint:
		return &Checkpoint{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Decode unmarshals a stored JSON body into an entity of the given kind.
func Decode(kind Kind, body []byte) (Entity, error) {
	e, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	return e, nil
}

// Encode marshals an entity to its stored JSON body.
func Encode(e Entity) ([]byte, error) {
	return json.Marshal(e)
}

// Clone deep-copies an entity.
func Clone[T Entity](e T) T {
	body, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("world: encoding %s: %v", e.Kind(), err))
	}
	c, err := Decode(e.Kind(), body)
	if err != nil {
		panic(fmt.Sprintf("world: decoding %s: %v", e.Kind(), err))
	}
	return c.(T)
}

func asString(field string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case nil:
		return "", nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: field %s wants a string, got %T", ErrInvalid, field, v)
}

func asFloat(field string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: field %s wants a number, got %v", ErrInvalid, field, v)
}

func asStrings(field string, v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return s, nil
	case string:
		return []string{s}, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: field %s wants strings, got %T", ErrInvalid, field, item)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: field %s wants a list of strings, got %T", ErrInvalid, field, v)
}

func setString(field string, dst *string, v any) (string, string, error) {
	s, err := asString(field, v)
	if err != nil {
		return "", "", err
	}
	old := *dst
	*dst = s
	return old, s, nil
}

func setStrings(field string, dst *[]string, v any) (string, string, error) {
	s, err := asStrings(field, v)
	if err != nil {
		return "", "", err
	}
	old := render(*dst)
	if len(s) == 0 {
		*dst = nil
	} else {
		*dst = slices.Clone(s)
	}
	return old, render(*dst), nil
}
