package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/engine"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/tick"
	"github.com/papercomputeco/chronicle/pkg/world"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EntitiesResponse lists entities of one kind.
type EntitiesResponse struct {
	Kind     world.Kind     `json:"kind"`
	Count    int            `json:"count"`
	Entities []world.Entity `json:"entities"`
}

// SearchResult is one search hit with the entity it resolved to.
type SearchResult struct {
	ID     string       `json:"id"`
	Score  float32      `json:"score"`
	Entity world.Entity `json:"entity"`
}

// SearchResponse is the response to GET /v1/search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Index   string         `json:"index"`
	Count   int            `json:"count"`
	Results []SearchResult `json:"results"`
}

// TicksResponse reports the ticks run by one POST /v1/ticks. When a tick
// aborts, Results holds the ticks that ran up to and including it.
type TicksResponse struct {
	Results []*tick.Result `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// CheckpointRequest is the body of POST /v1/checkpoints.
type CheckpointRequest struct {
	Message string `json:"message"`
}

// RestoreResponse is the response to a checkpoint restore.
type RestoreResponse struct {
	Restored string            `json:"restored"`
	Safety   *world.Checkpoint `json:"safety"`
	Tick     int               `json:"tick"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleWorld returns the project status.
func (s *Server) handleWorld(c *fiber.Ctx) error {
	return c.JSON(s.engine.Status())
}

// handleListEntities handles GET /v1/entities.
// Query parameters:
//   - kind (required): entity kind or ID prefix, e.g. "character" or "char"
func (s *Server) handleListEntities(c *fiber.Ctx) error {
	kind, err := world.ParseKind(c.Query("kind"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	entities := s.engine.Reader().List(kind, nil)
	if entities == nil {
		entities = []world.Entity{}
	}
	return c.JSON(EntitiesResponse{
		Kind:     kind,
		Count:    len(entities),
		Entities: entities,
	})
}

func (s *Server) handleGetEntity(c *fiber.Ctx) error {
	ent, err := s.engine.Reader().Get(c.Params("id"))
	if err != nil {
		if world.IsNotFound(err) {
			return errorJSON(c, fiber.StatusNotFound, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(ent)
}

func (s *Server) handlePendingBeats(c *fiber.Ctx) error {
	beats := s.engine.PendingBeats()
	if beats == nil {
		beats = []*world.PlotBeat{}
	}
	return c.JSON(beats)
}

// handleSearch handles GET /v1/search.
// Query parameters:
//   - query (required): the search query text
//   - index (optional, default "entities"): "entities" or "lore"
//   - top_k (optional, default 5): number of results to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return errorJSON(c, fiber.StatusBadRequest, "query parameter is required")
	}

	topK, err := positiveQuery(c, "top_k", 5)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	name := c.Query("index", index.Entities)
	hits, err := s.engine.Search(c.Context(), name, query, topK)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownIndex) {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		ent, err := s.engine.Reader().Get(hit.ID)
		if err != nil {
			s.logger.Debug("dropping stale search hit", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		results = append(results, SearchResult{ID: hit.ID, Score: hit.Score, Entity: ent})
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Index:   name,
		Count:   len(results),
		Results: results,
	})
}

// handleTicks handles POST /v1/ticks.
// Query parameters:
//   - count (optional, default 1): ticks to run, one after another
func (s *Server) handleTicks(c *fiber.Ctx) error {
	count, err := positiveQuery(c, "count", 1)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if count > s.config.MaxTicks {
		return errorJSON(c, fiber.StatusBadRequest, "count may not exceed "+strconv.Itoa(s.config.MaxTicks))
	}

	resp := TicksResponse{Results: make([]*tick.Result, 0, count)}
	for range count {
		res, err := s.engine.Tick(c.Context())
		if res != nil {
			resp.Results = append(resp.Results, res)
		}
		if err != nil {
			resp.Error = err.Error()
			return c.Status(fiber.StatusInternalServerError).JSON(resp)
		}
	}
	return c.JSON(resp)
}

func (s *Server) handleGetOptions(c *fiber.Ctx) error {
	return c.JSON(s.engine.Options())
}

// handleSetOptions applies a partial options update on top of the current
// options.
func (s *Server) handleSetOptions(c *fiber.Ctx) error {
	opts := s.engine.Options()
	if err := c.BodyParser(&opts); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid options body: "+err.Error())
	}
	if err := s.engine.SetOptions(opts); err != nil {
		if errors.Is(err, config.ErrInvalidEngineConfig) {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.engine.Options())
}

func (s *Server) handleListCheckpoints(c *fiber.Ctx) error {
	cps := s.engine.Checkpoints()
	if cps == nil {
		cps = []*world.Checkpoint{}
	}
	return c.JSON(cps)
}

func (s *Server) handleCreateCheckpoint(c *fiber.Ctx) error {
	var req CheckpointRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid checkpoint body: "+err.Error())
		}
	}

	cp, err := s.engine.CreateCheckpoint(c.Context(), req.Message)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(cp)
}

func (s *Server) handleRestoreCheckpoint(c *fiber.Ctx) error {
	id := c.Params("id")
	safety, err := s.engine.RestoreCheckpoint(c.Context(), id)
	if err != nil {
		if world.IsNotFound(err) {
			return errorJSON(c, fiber.StatusNotFound, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(RestoreResponse{
		Restored: id,
		Safety:   safety,
		Tick:     s.engine.Reader().Tick(),
	})
}

func (s *Server) handleDeleteCheckpoint(c *fiber.Ctx) error {
	if err := s.engine.DeleteCheckpoint(c.Context(), c.Params("id")); err != nil {
		if world.IsNotFound(err) {
			return errorJSON(c, fiber.StatusNotFound, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func positiveQuery(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return n, nil
}
