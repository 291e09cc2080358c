// Package server exposes the sponsorship proxy over HTTP: the proxy
// orchestrator that turns an upstream x402 challenge into a sponsored action
// offer, the validation orchestrator that settles a completed action, and
// the sponsor funding surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sponsorgate "github.com/x402-foundation/sponsorgate"
	"github.com/x402-foundation/sponsorgate/pkg/logger"
	"github.com/x402-foundation/sponsorgate/resources"
	"github.com/x402-foundation/sponsorgate/store"
	"github.com/x402-foundation/sponsorgate/x402client"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second

	// anonymousUser is the identity assumed when no x-user-id header is sent
	anonymousUser = "anon"
)

// ChallengeFetcher elicits the x402 challenge from an upstream resource.
// Implemented by x402client.ChallengeClient; replaced by doubles in tests.
type ChallengeFetcher interface {
	GetChallenge(ctx context.Context, upstreamURL, method string, headers map[string]string, body []byte) (*sponsorgate.Challenge, error)
}

// Config carries the server's collaborators and settings.
type Config struct {
	ListenAddr     string
	TreasuryWallet string
	Store          *store.Store
	Plugins        *sponsorgate.Registry
	Resources      resources.Registry
	Challenges     ChallengeFetcher
	Payments       x402client.PaymentSubmitter
	Logger         *logger.Logger
	Metrics        *Metrics
	Debug          bool
}

// Server is the HTTP front of the sponsorship proxy.
type Server struct {
	cfg     Config
	logger  *logger.Logger
	router  *gin.Engine
	server  *http.Server
	guard   *settlementGuard
	metrics *Metrics
}

// New creates a server with its routes registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		router:  router,
		guard:   newSettlementGuard(),
		metrics: cfg.Metrics,
	}
	s.routes()
	return s
}

// routes sets up the routes for the HTTP server.
func (s *Server) routes() {
	s.router.Any("/proxy/:resourceId/*proxyPath", s.handleProxy)
	s.router.POST("/actions/validate", s.handleValidate)
	s.router.POST("/sponsors/fund", s.handleFund)
	s.router.GET("/sponsors/:id", s.handleGetSponsor)
	s.router.GET("/sponsors/:id/funding", s.handleListFunding)
	s.router.GET("/sponsors/:id/actions", s.handleListActions)
	s.router.GET("/plugins", s.handleListPlugins)
	s.router.GET("/resources", s.handleListResources)
	s.router.GET("/resources/:id", s.handleGetResource)
	s.router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			s.metrics.Registry,
			promhttp.HandlerOpts{},
		)))
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("starting HTTP server", "address", s.cfg.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// userID resolves the caller identity from the x-user-id header.
func userID(c *gin.Context) string {
	if id := c.GetHeader("x-user-id"); id != "" {
		return id
	}
	return anonymousUser
}
