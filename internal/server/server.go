// Package server exposes the triage pipeline over HTTP. It is a thin adapter:
// handlers translate requests into orchestrator and gateway calls.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/config"
	"github.com/civicworks/capital-triage/internal/gateway"
	"github.com/civicworks/capital-triage/internal/pipeline"
	"github.com/civicworks/capital-triage/internal/report"
	"github.com/civicworks/capital-triage/internal/repository"
	"github.com/civicworks/capital-triage/internal/seed"
)

// Deps bundles everything the handlers call into.
type Deps struct {
	Pipeline  *pipeline.Orchestrator
	Gateway   *gateway.Gateway
	Seeder    *seed.Loader
	Issues    *repository.IssueRepository
	Report    *report.ExcelWriter
	ReportDir string
}

// Server is the HTTP adapter over the pipeline.
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
	logger     *zap.Logger
}

// New creates the HTTP server and registers all routes.
func New(cfg config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config: cfg,
		router: router,
		deps:   deps,
		logger: logger,
	}

	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.logger)

	api := s.router.Group("/api")
	{
		api.GET("/health", handlers.Health)
		api.POST("/init", handlers.Init)
		api.POST("/run-formation", handlers.RunFormation)
		api.POST("/run-governance", handlers.RunGovernance)
		api.GET("/approvals", handlers.ListApprovals)
		api.POST("/approvals", handlers.SubmitApprovals)
		api.POST("/run-scheduling", handlers.RunScheduling)
		api.GET("/results", handlers.Results)
		api.GET("/report", handlers.DownloadReport)
	}
}

// Start runs the server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying gin router, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
