package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var (
	searchToolName    = "search_world"
	searchDescription = "Semantic search over the story world. Searches characters, locations, relationships and scenes by default, or established lore facts when index is \"lore\"."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query text"`
	Index string `json:"index,omitempty" jsonschema:"entities or lore (default: entities)"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Score   float32 `json:"score"`
	Summary string  `json:"summary"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	if strings.TrimSpace(input.Query) == "" {
		return toolError("query is required"), SearchOutput{}, nil
	}
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	logger.Debug("MCP search request",
		zap.String("query", input.Query),
		zap.String("index", input.Index),
		zap.Int("topK", topK),
	)

	hits, err := s.config.Engine.Search(ctx, input.Index, input.Query, topK)
	if err != nil {
		logger.Error("failed to search world", zap.Error(err))
		return toolError("Search failed: %v", err), SearchOutput{}, nil
	}

	reader := s.config.Engine.Reader()
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		ent, err := reader.Get(hit.ID)
		if err != nil {
			logger.Warn("dropping stale search hit",
				zap.String("id", hit.ID),
				zap.Error(err),
			)
			continue
		}
		results = append(results, buildSearchResult(hit, ent))
	}

	return toolResult(logger, SearchOutput{
		Query:   input.Query,
		Results: results,
		Count:   len(results),
	})
}

func buildSearchResult(hit index.Hit, ent world.Entity) SearchResult {
	summary, _, _ := index.Document(ent)
	return SearchResult{
		ID:      hit.ID,
		Kind:    string(ent.Kind()),
		Score:   hit.Score,
		Summary: summary,
	}
}
