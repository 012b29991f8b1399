// Package httpapi is the provider process's control surface (spec §6
// "Control messages (operator <-> provider)"), answering the operator's
// HealthPing and CallProvider calls over plain HTTP — grounded on the same
// gin-engine-with-graceful-shutdown shape as operator/httpapi, itself
// grounded on services/facilitator/internal/server/server.go.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hypergrid-io/hypergrid/internal/config"
	"github.com/hypergrid-io/hypergrid/internal/health"
	"github.com/hypergrid-io/hypergrid/internal/metrics"
	"github.com/hypergrid-io/hypergrid/provider"
	"github.com/hypergrid-io/hypergrid/provider/executor"
)

// Version is the service version, set at build time.
var Version = "dev"

// Server is the provider's HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config

	verifier     *provider.Verifier
	providers    *provider.ProviderSet
	descriptors  map[string]executor.EndpointDescriptor
	executor     *executor.Executor
	sourceNodeID string

	metrics *metrics.Metrics
	health  *health.Checker
}

func New(
	cfg *config.Config,
	verifier *provider.Verifier,
	providers *provider.ProviderSet,
	descriptors map[string]executor.EndpointDescriptor,
	exec *executor.Executor,
) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:       gin.New(),
		cfg:          cfg,
		verifier:     verifier,
		providers:    providers,
		descriptors:  descriptors,
		executor:     exec,
		sourceNodeID: cfg.SourceNodeID,
		metrics:      metrics.New("hypergrid_provider"),
		health:       health.NewChecker(Version),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(s.metrics.GinMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health.HealthHandler())
	s.router.GET("/ready", s.health.ReadyHandler())
	s.router.GET("/metrics", s.metrics.Handler())

	s.router.GET("/control/health", s.handleHealth)
	s.router.POST("/control/call", s.handleCall)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
