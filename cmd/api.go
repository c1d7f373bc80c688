package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/config"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/api"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/cache"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/messaging"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/notify"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/search"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server handling order webhooks and staff fulfillment actions`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	metricsCollector := metrics.NewCollector()

	serviceBus, err := messaging.NewServiceBus(cfg.Azure)
	if err != nil {
		return err
	}
	defer serviceBus.Close()

	notifySender, err := serviceBus.NewSender(cfg.Azure.NotificationsQueue, "fulfillment-api")
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notifySender, metricsCollector, cfg.Notify)

	ingestionService := services.NewIngestionService(db, readOnlyDB, redisCache, elasticClient, dispatcher, tracer, metricsCollector)
	fulfillmentService := services.NewFulfillmentService(db, readOnlyDB, elasticClient, dispatcher, tracer, metricsCollector)

	server := api.NewServer(cfg, ingestionService, fulfillmentService, elasticClient, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(time.Hour)

	return db, readOnlyDB, nil
}
