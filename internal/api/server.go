// Package api provides the command API: an HTTP surface for health,
// statistics, and the config revision store, served by gin. Trees go
// over the wire in their canonical text form, which is valid JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestreldns/kestrel/internal/api/middleware"
	"github.com/kestreldns/kestrel/internal/stats"
	"github.com/kestreldns/kestrel/internal/store"
)

// Server is the command API server.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the server. key protects everything under /api/v1 when
// non-empty.
func New(addr, key string, st *store.Store, collector *stats.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := &handler{store: st, stats: collector, logger: logger}
	registerRoutes(engine, h, key)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

func registerRoutes(r *gin.Engine, h *handler, key string) {
	api := r.Group("/api/v1")
	if key != "" {
		api.Use(middleware.RequireAPIKey(key))
	}

	api.GET("/health", h.health)
	api.GET("/stats", h.statsSnapshot)

	api.GET("/config", h.getConfig)
	api.PUT("/config", h.putConfig)
	api.GET("/config/versions", h.configVersions)
	api.GET("/config/find/*path", h.findConfig)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Engine exposes the router for httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
