package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var (
	beatsToolName    = "pending_beats"
	beatsDescription = "List the plot beats the story has not reached yet, in the order they will be attempted."
)

// BeatsInput takes no arguments.
type BeatsInput struct{}

// Beat is a pending plot beat with its required cast resolved to names.
type Beat struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	TensionTarget int      `json:"tension_target"`
	Characters    []string `json:"characters,omitempty"`
	Location      string   `json:"location,omitempty"`
}

// BeatsOutput represents the output of the pending_beats tool.
type BeatsOutput struct {
	Beats []Beat `json:"beats"`
	Count int    `json:"count"`
}

func (s *Server) handlePendingBeats(_ context.Context, _ *mcp.CallToolRequest, _ BeatsInput) (*mcp.CallToolResult, BeatsOutput, error) {
	pending := s.config.Engine.PendingBeats()
	reader := s.config.Engine.Reader()

	beats := make([]Beat, 0, len(pending))
	for _, b := range pending {
		beats = append(beats, buildBeat(reader, b))
	}

	return toolResult(s.config.Logger, BeatsOutput{Beats: beats, Count: len(beats)})
}

func buildBeat(r store.Reader, b *world.PlotBeat) Beat {
	out := Beat{
		ID:            b.ID,
		Description:   b.Description,
		TensionTarget: b.TensionTarget,
	}
	for _, id := range b.RequiredCharacters {
		name := id
		if ent, err := r.Get(id); err == nil {
			if c, ok := ent.(*world.Character); ok {
				name = c.FullName()
			}
		}
		out.Characters = append(out.Characters, name)
	}
	if b.RequiredLocation != "" {
		out.Location = b.RequiredLocation
		if ent, err := r.Get(b.RequiredLocation); err == nil {
			if l, ok := ent.(*world.Location); ok {
				out.Location = l.Name
			}
		}
	}
	return out
}
