// Package api serves stored statistics runs over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

// Server bundles the router and the store it reads from.
type Server struct {
	cfg    properties.Config
	reader store.Reader
	engine *gin.Engine
}

func New(cfg properties.Config, reader store.Reader) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, reader: reader, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.APIAddr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.cfg.APIAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:run/units", s.handleListUnits)
	v1.GET("/runs/:run/statistics", s.handleListStatistics)
	v1.GET("/runs/:run/series", s.handleSeries)
	v1.GET("/runs/:run/table.csv", s.handleTableCSV)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"took":   time.Since(start),
		}).Debug("api request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
