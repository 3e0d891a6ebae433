// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/storage"
)

// WatchService is the subset of the watcher the API exposes: listing and
// editing watched knowledge-base directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	pipeline   *pipeline.Pipeline
	storage    storage.Storage
	cfg        *config.Config
	configPath string
	watch      WatchService
	logger     *zap.Logger
	server     *http.Server
	cfgMu      sync.Mutex
}

// NewServer creates a server. watch may be nil when directory watching is
// disabled; configPath may be empty when watch edits should not persist.
func NewServer(
	p *pipeline.Pipeline,
	store storage.Storage,
	cfg *config.Config,
	configPath string,
	watch WatchService,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline:   p,
		storage:    store,
		cfg:        cfg,
		configPath: configPath,
		watch:      watch,
		logger:     logger,
	}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(300 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.handleIngestDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/search", s.handleSearch)

		r.Post("/rfps", s.handleCreateRFP)
		r.Get("/rfps", s.handleListRFPs)
		r.Get("/rfps/{id}", s.handleGetRFP)
		r.Post("/rfps/{id}/answers", s.handleGenerateAnswers)
		r.Get("/rfps/{id}/answers", s.handleListAnswers)

		r.Post("/questions/{id}/regenerate", s.handleRegenerateAnswer)

		r.Post("/index/rebuild", s.handleRebuildIndex)
		r.Get("/status", s.handleStatus)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
