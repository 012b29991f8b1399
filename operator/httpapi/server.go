// Package httpapi is the operator's gin HTTP + WebSocket surface (spec §6
// "HTTP API (operator -> client)"), grounded on
// go/http/gin/middleware.go (gin adapter conventions) and
// services/facilitator/internal/server/server.go (engine construction,
// middleware stack, graceful shutdown).
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hypergrid-io/hypergrid/auth"
	"github.com/hypergrid-io/hypergrid/delegation"
	"github.com/hypergrid-io/hypergrid/internal/config"
	"github.com/hypergrid-io/hypergrid/internal/health"
	"github.com/hypergrid-io/hypergrid/internal/metrics"
	"github.com/hypergrid-io/hypergrid/operator"
	"github.com/hypergrid-io/hypergrid/registry"
	"github.com/hypergrid-io/hypergrid/wallet"
)

// Version is the service version, set at build time.
var Version = "dev"

// Server is the operator's HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config

	dispatcher *operator.Dispatcher
	authz      *auth.Registry
	registry   *registry.Store
	wallets    *wallet.Manager
	history    *operator.History
	status     *operator.StatusChecker
	identity   operator.IdentitySource
	delegation *delegation.Verifier
	hub        *Hub

	metrics *metrics.Metrics
	health  *health.Checker
}

func New(
	cfg *config.Config,
	dispatcher *operator.Dispatcher,
	authz *auth.Registry,
	reg *registry.Store,
	wallets *wallet.Manager,
	history *operator.History,
	status *operator.StatusChecker,
	identity operator.IdentitySource,
	delegationVerifier *delegation.Verifier,
) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		cfg:        cfg,
		dispatcher: dispatcher,
		authz:      authz,
		registry:   reg,
		wallets:    wallets,
		history:    history,
		status:     status,
		identity:   identity,
		delegation: delegationVerifier,
		hub:        NewHub(),
		metrics:    metrics.New("hypergrid_operator"),
		health:     health.NewChecker(Version),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Broadcaster exposes the WebSocket hub to operator.Dispatcher.
func (s *Server) Broadcaster() operator.Broadcaster { return s.hub }

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(CORSMiddleware())
	s.router.Use(s.metrics.GinMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health.HealthHandler())
	s.router.GET("/ready", s.health.ReadyHandler())
	s.router.GET("/metrics", s.metrics.Handler())

	owner := s.router.Group("/")
	owner.Use(OwnerAuthMiddleware(s.cfg.OwnerToken))
	owner.POST("/api/mcp", s.handleUIMcp)
	owner.POST("/api/configure-authorized-client", s.handleConfigureAuthorizedClient)

	s.router.POST("/shim/mcp", s.handleShimMcp)

	s.router.GET("/api/hypergrid-graph", s.handleGraph)
	s.router.GET("/api/setup-status", s.handleSetupStatus)
	s.router.GET("/api/onboarding-status", s.handleSetupStatus)
	s.router.GET("/api/managed-wallets", s.handleManagedWallets)
	s.router.GET("/api/all", s.handleAll)
	s.router.GET("/api/cat", s.handleCat)
	s.router.GET("/api/search", s.handleSearch)
	s.router.GET("/api/state", s.handleState)

	s.router.GET("/ws", s.hub.ServeWS)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully, grounded on the same pattern as
// services/facilitator/internal/server/server.go's Start/Shutdown split.
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
