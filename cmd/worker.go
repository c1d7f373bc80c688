package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/config"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/cache"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/messaging"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/notify"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/search"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker consuming order events from Azure Service Bus and replaying captured ingestion failures`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	g, ctx := errgroup.WithContext(ctx)

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

	notifySender, err := serviceBus.NewSender(cfg.Azure.NotificationsQueue, "fulfillment-worker")
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notifySender, metricsCollector, cfg.Notify)

	ingestionService := services.NewIngestionService(db, readOnlyDB, redisCache, elasticClient, dispatcher, tracer, metricsCollector)

	// Consume inbound order events from the queue
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.OrderEventsQueue).Msg("Starting order events processor")
		return serviceBus.ProcessMessages(ctx, cfg.Azure.OrderEventsQueue, ingestionService.ProcessOrderMessage)
	})

	// Periodically replay captured ingestion failures
	g.Go(func() error {
		log.Info().
			Dur("interval", cfg.Worker.ReplayInterval).
			Int("batch", cfg.Worker.ReplayBatch).
			Msg("Starting failed event replay job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.ReplayInterval),
			gocron.NewTask(func() {
				if err := ingestionService.ReplayOldest(ctx, cfg.Worker.ReplayBatch); err != nil {
					log.Error().Err(err).Msg("Failed event replay cycle errored")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
