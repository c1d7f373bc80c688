package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/config"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/api/handlers"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/search"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config             config.Config
	router             *gin.Engine
	httpServer         *http.Server
	ingestionService   *services.IngestionService
	fulfillmentService *services.FulfillmentService
	elasticClient      *search.ElasticClient
	metrics            *metrics.Collector
	tracer             tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	ingestionService *services.IngestionService,
	fulfillmentService *services.FulfillmentService,
	elasticClient *search.ElasticClient,
	collector *metrics.Collector,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:             cfg,
		ingestionService:   ingestionService,
		fulfillmentService: fulfillmentService,
		elasticClient:      elasticClient,
		metrics:            collector,
		tracer:             tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(gin.Recovery())

	webhookHandler := handlers.NewWebhookHandler(s.ingestionService, s.tracer)
	webhookHandler.RegisterRoutes(router)

	orderHandler := handlers.NewOrderHandler(s.fulfillmentService, s.tracer)
	orderHandler.RegisterRoutes(router)

	adminHandler := handlers.NewAdminHandler(s.ingestionService, s.tracer)
	adminHandler.RegisterRoutes(router)

	searchHandler := handlers.NewSearchHandler(s.elasticClient, s.tracer)
	searchHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
