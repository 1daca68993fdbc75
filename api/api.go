package api

import (
	"fmt"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/api/mcp"
	"github.com/papercomputeco/chronicle/pkg/engine"
)

// Server is the API server for a single chronicle project.
type Server struct {
	config Config
	engine *engine.Engine
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server over an open engine. The engine is
// shared with the caller, which keeps ownership and closes it.
func NewServer(config Config, eng *engine.Engine, logger *zap.Logger) (*Server, error) {
	if config.MaxTicks <= 0 {
		config.MaxTicks = defaultMaxTicks
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: eng,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(eng.Metrics().Handler()))
	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/world", s.handleWorld)
	v1.Get("/entities", s.handleListEntities)
	v1.Get("/entities/:id", s.handleGetEntity)
	v1.Get("/beats", s.handlePendingBeats)
	v1.Get("/search", s.handleSearch)
	v1.Post("/ticks", s.handleTicks)
	v1.Get("/options", s.handleGetOptions)
	v1.Put("/options", s.handleSetOptions)
	v1.Get("/checkpoints", s.handleListCheckpoints)
	v1.Post("/checkpoints", s.handleCreateCheckpoint)
	v1.Post("/checkpoints/:id/restore", s.handleRestoreCheckpoint)
	v1.Delete("/checkpoints/:id", s.handleDeleteCheckpoint)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("project", s.engine.Project()),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
