package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/ingest/worker"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Server is the API server for managing and querying the Recall system
type Server struct {
	config   Config
	pipeline *ingest.Pipeline
	storer   storage.Driver
	pool     *worker.Pool
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server.
// The storage driver is injected to allow sharing with other components;
// the worker pool is optional and enables async ingestion when present.
func NewServer(config Config, pipeline *ingest.Pipeline, storer storage.Driver, pool *worker.Pool, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		pipeline: pipeline,
		storer:   storer,
		pool:     pool,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1", s.requireTenant)
	v1.Post("/documents", s.handleCreateDocument)
	v1.Get("/documents", s.handleListDocuments)
	v1.Get("/documents/:id", s.handleGetDocument)
	v1.Delete("/documents/:id", s.handleDeleteDocument)
	v1.Get("/search", s.handleSearchEndpoint)

	return s
}

// App exposes the underlying fiber app for mounting additional handlers
// (e.g. the MCP endpoint) and for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
