package store

import (
	"github.com/papercomputeco/chronicle/pkg/world"
)

// GetAs fetches id and asserts its concrete type. A wrong kind is reported
// as not found.
func GetAs[T world.Entity](r Reader, id string) (T, error) {
	var zero T

	e, err := r.Get(id)
	if err != nil {
		return zero, err
	}

	t, ok := e.(T)
	if !ok {
		return zero, world.NotFoundError{ID: id}
	}
	return t, nil
}

// ListAs lists entities of kind as their concrete type.
func ListAs[T world.Entity](r Reader, kind world.Kind, filter Filter) []T {
	es := r.List(kind, filter)
	out := make([]T, 0, len(es))
	for _, e := range es {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// RecentScenes returns up to n of the latest scenes, oldest first.
func RecentScenes(r Reader, n int) []*world.Scene {
	scenes := ListAs[*world.Scene](r, world.KindScene, nil)
	if n >= 0 && len(scenes) > n {
		scenes = scenes[len(scenes)-n:]
	}
	return scenes
}

// MirrorOf finds the relationship running the other way between the same two
// characters with the same type, as created by a mirrored CreateRelationship.
func MirrorOf(r Reader, rel *world.Relationship) (*world.Relationship, bool) {
	found := ListAs[*world.Relationship](r, world.KindRelationship, func(e world.Entity) bool {
		o, ok := e.(*world.Relationship)
		return ok && o.ID != rel.ID &&
			o.SourceID == rel.TargetID && o.TargetID == rel.SourceID && o.Type == rel.Type
	})
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}
