// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cosmossdk.io/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haunti-network/haunti/config"
	"github.com/haunti-network/haunti/orchestrator"
	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/zk/registry"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haunti_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "haunti_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// Server represents the API server
type Server struct {
	config   config.APIConfig
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	bank     *ledger.Bank
	logger   log.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.APIConfig, orch *orchestrator.Orchestrator, reg *registry.Registry, bank *ledger.Bank, logger log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:   cfg,
		orch:     orch,
		registry: reg,
		bank:     bank,
		logger:   logger.With("component", "api"),
		router:   router,
	}
	s.router.Use(s.observe())
	s.routes()
	return s
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		apiRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		apiRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.config.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/v1")
	{
		v1.POST("/tasks", s.createTask)
		v1.GET("/tasks/:id", s.getTask)
		v1.DELETE("/tasks/:id", s.cancelTask)
		v1.POST("/tasks/:id/claim", s.claimTask)
		v1.POST("/tasks/:id/proof", s.submitProof)
		v1.POST("/tasks/:id/reclaim", s.reclaimExpired)

		v1.POST("/stake", s.stake)
		v1.POST("/unstake", s.unstake)
		v1.POST("/rewards/claim", s.claimRewards)
		v1.GET("/pools/:pool/apy", s.getAPY)

		v1.GET("/balances/:participant", s.getBalance)
		v1.GET("/circuits", s.listCircuits)
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.config.ListenAddr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
