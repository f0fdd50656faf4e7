// Package http provides the HTTP adapter for the approval engine. It is a
// thin layer translating requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finflow/expense-approval/internal/application/service"
	"github.com/finflow/expense-approval/internal/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, flows service.FlowService, rules service.RuleService, exporter *report.Exporter, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(flows, rules, exporter, logger),
		logger:   logger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/expenses/submit", s.handlers.SubmitExpense)

		v1.GET("/flows", s.handlers.ListFlows)
		v1.GET("/flows/:id", s.handlers.GetFlow)
		v1.GET("/flows/:id/history", s.handlers.FlowHistory)
		v1.POST("/flows/:id/votes", s.handlers.CastVote)
		v1.POST("/flows/:id/cancel", s.handlers.CancelFlow)

		v1.POST("/rules", s.handlers.CreateRule)
		v1.GET("/rules", s.handlers.ListRules)
		v1.GET("/rules/:id", s.handlers.GetRule)
		v1.POST("/rules/:id/toggle", s.handlers.ToggleRule)

		v1.POST("/reports/export", s.handlers.ExportReport)
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("HTTP server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine, for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
