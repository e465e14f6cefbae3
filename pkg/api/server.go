// Package api is the HTTP surface: job submission, SSE streaming,
// session management, feedback, analytics, and health.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/queue"
	"github.com/maestro-ai/maestro/pkg/services"
	"github.com/maestro-ai/maestro/pkg/tools"
)

// Dependencies are the backends the server fronts. Pool and Broker may
// be nil on API-only replicas; the affected endpoints degrade.
type Dependencies struct {
	DB       *sql.DB
	Queue    *queue.Store
	Sessions *services.SessionService
	Feedback *services.FeedbackService
	Events   *services.EventService
	Broker   *events.SubscriptionBroker
	Pool     *queue.WorkerPool
	Tools    *tools.Registry
	LLM      llm.Client
}

// Server is the HTTP API server.
type Server struct {
	echo *echo.Echo
	http *http.Server

	brokerCfg *config.BrokerConfig
	deps      Dependencies
}

// NewServer creates the server and registers all routes.
func NewServer(brokerCfg *config.BrokerConfig, deps Dependencies) *Server {
	s := &Server{
		echo:      echo.New(),
		brokerCfg: brokerCfg,
		deps:      deps,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(recovery())
	e.Use(requestID())
	e.Use(securityHeaders())
	e.Use(corsHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/queue", s.queueHandler)
	api.GET("/stream/:request_id", s.streamHandler)

	api.GET("/sessions", s.listSessionsHandler)
	api.GET("/sessions/:id", s.getSessionHandler)
	api.DELETE("/sessions/:id", s.deleteSessionHandler)
	api.DELETE("/sessions", s.deleteAllSessionsHandler)

	api.POST("/feedback", s.createFeedbackHandler)
	api.GET("/analytics/feedback", s.feedbackAnalyticsHandler)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
// Open SSE streams are closed by the shutdown context.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
