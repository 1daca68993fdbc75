// Package world defines the persistent entities of a chronicle project:
// characters, locations, relationships, lore items, plot beats, scenes and
// checkpoints.
//
// Entities are plain data. They are created and mutated exclusively through
// pkg/store, which owns ID allocation, uniqueness and referential checks.
// Every mutation is stamped with the tick that made it and appended to the
// entity's history.
package world

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies an entity type.
type Kind string

const (
	KindCharacter    Kind = "character"
	KindLocation     Kind = "location"
	KindRelationship Kind = "relationship"
	KindLore         Kind = "lore"
	KindBeat         Kind = "beat"
	KindScene        Kind = "scene"
	KindCheckpoint   Kind = "checkpoint"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{
	KindCharacter,
	KindLocation,
	KindRelationship,
	KindLore,
	KindBeat,
	KindScene,
	KindCheckpoint,
}

var idPrefixes = map[Kind]string{
	KindCharacter:    "char",
	KindLocation:     "loc",
	KindRelationship: "rel",
	KindLore:         "lore",
	KindBeat:         "beat",
	KindScene:        "scene",
	KindCheckpoint:   "ckpt",
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := idPrefixes[k]
	return ok
}

// Deletable reports whether entities of this kind support explicit removal.
func (k Kind) Deletable() bool {
	return k == KindLore || k == KindCheckpoint
}

// ParseKind parses a kind name, also accepting the ID prefix ("char", "loc").
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, prefix := range idPrefixes {
		if s == string(k) || s == prefix || s == string(k)+"s" {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// FormatID renders the ID for the seq-th entity of the given kind.
func FormatID(kind Kind, seq int) string {
	return fmt.Sprintf("%s_%03d", idPrefixes[kind], seq)
}

// ParseID splits an entity ID into its kind and sequence number.
func ParseID(id string) (Kind, int, error) {
	prefix, num, ok := strings.Cut(id, "_")
	if !ok {
		return "", 0, fmt.Errorf("malformed entity id %q", id)
	}

	seq, err := strconv.Atoi(num)
	if err != nil || seq <= 0 {
		return "", 0, fmt.Errorf("malformed entity id %q", id)
	}

	for k, p := range idPrefixes {
		if p == prefix {
			return k, seq, nil
		}
	}

	return "", 0, fmt.Errorf("unknown entity id prefix in %q", id)
}

// KindOf returns the kind encoded in id.
func KindOf(id string) (Kind, bool) {
	k, _, err := ParseID(id)
	return k, err == nil
}

// Seq returns the sequence number encoded in id, or 0 when id is malformed.
func Seq(id string) int {
	_, n, err := ParseID(id)
	if err != nil {
		return 0
	}
	return n
}
