package index

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/chronicle/pkg/world"
)

// Metadata keys set on indexed entries.
const (
	MetaKind       = "kind"
	MetaCategory   = "category"
	MetaType       = "type"
	MetaImportance = "importance"
)

// Document returns the text and metadata under which e is indexed. The
// second result is false for kinds that are never indexed.
func Document(e world.Entity) (string, map[string]string, bool) {
	meta := map[string]string{MetaKind: string(e.Kind())}

	var b strings.Builder
	switch v := e.(type) {
	case *world.Character:
		b.WriteString(v.FullName())
		if len(v.Nicknames) > 0 {
			fmt.Fprintf(&b, " (also called %s)", strings.Join(v.Nicknames, ", "))
		}
		writeSentence(&b, v.Description)
		writeSentence(&b, v.State.Emotional)
		writeSentence(&b, v.State.Physical)
	case *world.Location:
		b.WriteString(v.Name)
		writeSentence(&b, v.Atmosphere)
		writeSentence(&b, strings.Join(v.Sensory, ", "))
	case *world.Relationship:
		fmt.Fprintf(&b, "%s %s %s", v.SourceID, v.Type, v.TargetID)
	case *world.PlotBeat:
		b.WriteString(v.Description)
	case *world.Scene:
		writeSentence(&b, v.Intention)
		writeSentence(&b, v.Text)
	case *world.LoreItem:
		b.WriteString(v.Content)
		meta[MetaCategory] = string(v.Category)
		meta[MetaType] = string(v.Type)
		meta[MetaImportance] = string(v.Importance)
	default:
		return "", nil, false
	}

	if tags := e.Base().Tags; len(tags) > 0 {
		writeSentence(&b, strings.Join(tags, ", "))
	}
	return strings.TrimSpace(b.String()), meta, true
}

func writeSentence(b *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString(". ")
	}
	b.WriteString(s)
}
