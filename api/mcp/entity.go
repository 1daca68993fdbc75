package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	entityToolName    = "get_entity"
	entityDescription = "Fetch one world entity by ID, e.g. char_001, loc_002 or lore_010. Returns the full committed record."
)

// EntityInput represents the input arguments for the get_entity tool.
type EntityInput struct {
	ID string `json:"id" jsonschema:"the entity ID"`
}

// EntityOutput carries the entity as a JSON object.
type EntityOutput struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Entity map[string]any `json:"entity"`
}

func (s *Server) handleGetEntity(_ context.Context, _ *mcp.CallToolRequest, input EntityInput) (*mcp.CallToolResult, EntityOutput, error) {
	if input.ID == "" {
		return toolError("id is required"), EntityOutput{}, nil
	}

	ent, err := s.config.Engine.Reader().Get(input.ID)
	if err != nil {
		return toolError("Lookup failed: %v", err), EntityOutput{}, nil
	}

	raw, err := json.Marshal(ent)
	if err != nil {
		return toolError("Failed to serialize entity: %v", err), EntityOutput{}, nil
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return toolError("Failed to serialize entity: %v", err), EntityOutput{}, nil
	}

	return toolResult(s.config.Logger, EntityOutput{
		ID:     input.ID,
		Kind:   string(ent.Kind()),
		Entity: fields,
	})
}
