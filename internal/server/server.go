// Package server exposes the data store over HTTP.
//
// The store itself is unsynchronized, so the server owns the one
// mutex that serializes every store access, including the periodic
// flush and sampler writes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/xtxerr/sensorlog/internal/datastore"
	"github.com/xtxerr/sensorlog/internal/forward"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/schema"
)

var log = logging.Component("server")

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "0.0.0.0:8000").
	Listen string

	// Store is the data store behind every endpoint (required).
	Store *datastore.Store

	// Forward receives every ingested reading for rebroadcast.
	Forward *forward.Manager
}

// Server is the HTTP front end over a datastore.Store.
type Server struct {
	mu    sync.Mutex
	store *datastore.Store
	fwd   *forward.Manager

	engine *gin.Engine
	http   *http.Server
}

// New creates a server with all routes registered.
func New(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		store:  cfg.Store,
		fwd:    cfg.Forward,
		engine: engine,
	}
	s.registerRoutes()

	s.http = &http.Server{Addr: cfg.Listen, Handler: engine}
	return s
}

// Run serves HTTP and blocks until Shutdown is called or the listener
// fails.
func (s *Server) Run() error {
	log.Info("listening", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down")
	return s.http.Shutdown(ctx)
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Flush persists the store under the store mutex. Called by the
// periodic flush ticker and during shutdown.
func (s *Server) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Flush(ctx)
}

// AddReading appends one reading under the store mutex. This is the
// sampler's sink.
func (s *Server) AddReading(r schema.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.AddReading(r)
}
