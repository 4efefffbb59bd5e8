// Package api is the development REST backend: the uniform /api/{resource}
// contract over an in-memory or Postgres store.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

type Server struct {
	mu         sync.RWMutex
	catalog    *dsl.Catalog
	catalogDir string

	store      Store
	log        zerolog.Logger
	router     *gin.Engine
	httpServer *http.Server
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithCatalogDir — каталог *.dsl для перезагрузки через /api/_admin/reload.
func WithCatalogDir(dir string) Option {
	return func(s *Server) {
		s.catalogDir = dir
	}
}

func NewServer(addr string, cat *dsl.Catalog, store Store, opts ...Option) *Server {
	s := &Server{
		catalog: cat,
		store:   store,
		log:     log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Catalog() *dsl.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	{
		// служебные маршруты — СНАЧАЛА
		apiGroup.GET("/meta", s.MetaListHandler())
		apiGroup.GET("/meta/:resource", s.MetaEntityHandler())
		apiGroup.POST("/_admin/reload", s.AdminReloadHandler())

		apiGroup.GET("/:resource", s.ListHandler())
		apiGroup.POST("/:resource", s.CreateHandler())
		apiGroup.GET("/:resource/:id", s.GetOneHandler())
		apiGroup.PATCH("/:resource/:id", s.UpdatePartialHandler())
		apiGroup.DELETE("/:resource/:id", s.DeleteHandler())
	}
	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Not found")
	})
	return r
}

// Start блокируется до Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("address", s.httpServer.Addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}
	return nil
}

// Logger пишет каждый запрос: статус, задержка, метод, путь.
func Logger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Msg("request")
	}
}
