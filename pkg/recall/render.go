package recall

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/chronicle/pkg/world"
)

// Render formats the packet for an audience. Planning output carries full
// names and entity IDs; prose output carries display names only.
func (p *Packet) Render(a world.Audience) string {
	var b strings.Builder

	b.WriteString("## Point of view\n")
	if p.POV != nil {
		b.WriteString(p.label(p.POV.ID, a))
	} else {
		b.WriteString("Unspecified")
	}
	b.WriteString("\n")

	if p.Intention != "" {
		fmt.Fprintf(&b, "\n## Scene intention\n%s\n", p.Intention)
	}

	if len(p.Entities) > 0 {
		b.WriteString("\n## Relevant world\n")
		for _, it := range p.Entities {
			fmt.Fprintf(&b, "- %s\n", p.describe(it.Entity, a))
		}
	}

	b.WriteString("\n## Tension\n")
	b.WriteString(p.Tension.summary())
	b.WriteString("\n")
	if p.Tension.Guidance != "" {
		fmt.Fprintf(&b, "Suggestion (advisory): %s\n", p.Tension.Guidance)
	}

	if p.Beat != nil {
		b.WriteString("\n## Pending beat\n")
		b.WriteString(p.DescribeBeat(a))
		b.WriteString("\n")
	}

	return b.String()
}

// DescribeBeat renders the pending beat with its requirements.
func (p *Packet) DescribeBeat(a world.Audience) string {
	if p.Beat == nil {
		return ""
	}
	beat := p.Beat

	var b strings.Builder
	if a == world.AudiencePlanning {
		fmt.Fprintf(&b, "[%s] ", beat.ID)
	}
	b.WriteString(beat.Description)
	if len(beat.RequiredCharacters) > 0 {
		names := make([]string, len(beat.RequiredCharacters))
		for i, id := range beat.RequiredCharacters {
			names[i] = p.label(id, a)
		}
		fmt.Fprintf(&b, "\nRequired characters: %s", strings.Join(names, ", "))
	}
	if beat.RequiredLocation != "" {
		fmt.Fprintf(&b, "\nRequired location: %s", p.label(beat.RequiredLocation, a))
	}
	fmt.Fprintf(&b, "\nTension target: %d/10", beat.TensionTarget)
	return b.String()
}

// label is the name of a character or location, with its ID for planners.
func (p *Packet) label(id string, a world.Audience) string {
	name := p.Name(id, a)
	if a == world.AudiencePlanning && name != id {
		return fmt.Sprintf("%s (%s)", name, id)
	}
	return name
}

func (p *Packet) describe(e world.Entity, a world.Audience) string {
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	switch v := e.(type) {
	case *world.Character:
		head := p.label(v.ID, a)
		if a == world.AudiencePlanning && len(v.Nicknames) > 0 {
			head += fmt.Sprintf(", also called %s", strings.Join(v.Nicknames, ", "))
		}
		add("Character: %s", head)
		if v.Description != "" {
			add("%s", v.Description)
		}
		if v.State.Emotional != "" {
			add("feeling %s", v.State.Emotional)
		}
		if v.State.Physical != "" {
			add("physically %s", v.State.Physical)
		}
		if v.State.LocationID != "" {
			add("at %s", p.label(v.State.LocationID, a))
		}
	case *world.Location:
		add("Location: %s", p.label(v.ID, a))
		if v.Atmosphere != "" {
			add("%s", v.Atmosphere)
		}
		if len(v.Sensory) > 0 {
			add("%s", strings.Join(v.Sensory, ", "))
		}
		if len(v.Occupants) > 0 {
			names := make([]string, len(v.Occupants))
			for i, id := range v.Occupants {
				names[i] = p.label(id, a)
			}
			add("present: %s", strings.Join(names, ", "))
		}
	case *world.Relationship:
		add("Relationship: %s → %s is %s (strength %+.1f)", p.label(v.SourceID, a), p.label(v.TargetID, a), v.Type, v.Strength)
	case *world.LoreItem:
		add("Lore (%s %s, %s): %s", v.Category, v.Type, v.Importance, v.Content)
	case *world.PlotBeat:
		add("Beat (%s): %s", v.Status, v.Description)
	case *world.Scene:
		add("Earlier scene (tick %d): %s", v.Tick, v.Intention)
	default:
		add("%s", e.Base().ID)
	}

	line := strings.Join(parts, "; ")
	switch e.(type) {
	case *world.Character, *world.Location:
	default:
		if a == world.AudiencePlanning {
			line = fmt.Sprintf("[%s] %s", e.Base().ID, line)
		}
	}
	return line
}
