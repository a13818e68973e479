package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/allisson/go-pwdhash"
	"github.com/gin-gonic/gin"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/allisson/vaultd/internal/metrics"
	"github.com/allisson/vaultd/internal/policy"
)

// ServerConfig carries the request-layer settings the server needs.
type ServerConfig struct {
	Host string
	Port int

	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int

	CORSEnabled      bool
	CORSAllowOrigins string

	MetricsNamespace string
}

// Server is the vault API server.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer assembles the router: request ids, logging, recovery, metrics,
// optional CORS, client authentication, optional per-client rate limiting,
// then the vault routes.
func NewServer(
	cfg ServerConfig,
	handler *SecretHandler,
	pol *policy.Policy,
	hasher *pwdhash.PasswordHasher,
	onAuthFailure func(client string),
	meterProvider otelmetric.MeterProvider,
	logger *slog.Logger,
) *Server {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if meterProvider != nil {
		router.Use(metrics.HTTPMiddleware(meterProvider, cfg.MetricsNamespace))
	}

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", handler.HealthHandler)

	authenticated := router.Group("/")
	authenticated.Use(ClientAuthMiddleware(pol, hasher, onAuthFailure, logger))
	if cfg.RateLimitEnabled {
		authenticated.Use(RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, logger))
	}

	authenticated.GET("/secret/:name", handler.GetHandler)
	authenticated.POST("/secret", handler.CreateOrUpdateHandler)
	authenticated.DELETE("/secret/:name", handler.DeleteHandler)
	authenticated.GET("/secrets", handler.ListHandler)
	authenticated.POST("/rotate", handler.RotateHandler)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
