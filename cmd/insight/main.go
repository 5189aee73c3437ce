package main

import (
	"context"
	"os"
	"time"

	"insight/internal/amqp"
	"insight/internal/cli"
	"insight/internal/config"
	"insight/internal/dataset"
	apphttp "insight/internal/http"
	"insight/internal/log"
	"insight/internal/metrics"
)

func main() {
	cfg, logger := cli.Bootstrap((*config.Config).Validate)

	res := cli.OpenBackend(context.Background(), logger, cfg, false)
	defer res.Close()

	m := metrics.New()
	store := dataset.NewStore(res.Fetcher,
		dataset.WithArchiver(res.Archiver),
		dataset.WithTimeout(cfg.FetchTimeout),
		dataset.WithLogger(logger),
		dataset.WithObserver(m),
	)

	// The dashboard does not serve until the first snapshot is built.
	snap, err := store.Refresh(context.Background())
	if err != nil {
		logger.Error("Initial dataset load failed", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	logger.Info("Dataset loaded",
		log.FieldDatasetID, snap.ID(),
		log.FieldRange, snap.Source().String(),
		log.FieldRecordCount, snap.Len())

	opts := []apphttp.Option{apphttp.WithLogger(logger), apphttp.WithMetrics(m)}

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		if err := amqpClient.Declare(cfg.AMQPEventsQueue, amqp.RoutingKeyArchived); err != nil {
			logger.Error("Failed to declare events queue", log.FieldError, err, log.FieldQueue, cfg.AMQPEventsQueue)
			os.Exit(1)
		}
		opts = append(opts, apphttp.WithPublisher(amqpClient))
		logger.Info("Refreshes are queued for the worker",
			"exchange", cfg.AMQPExchange,
			log.FieldQueue, cfg.AMQPEventsQueue)
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		RoutePrefix:    cfg.RoutePrefix,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, store, opts...)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, _, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeDatasetArchived(ctx, cfg.AMQPEventsQueue, reloadOnArchive(store, logger))
			if err != nil && ctx.Err() == nil {
				logger.Error("Dataset event consumption stopped", log.FieldError, err)
			}
		}()
	}

	logger.Info("Starting insight server",
		"port", cfg.Port,
		"prefix", cfg.RoutePrefix,
		"backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

// reloadOnArchive rebuilds the store when the worker archives the range it
// reads. Announcements for other ranges are ignored.
func reloadOnArchive(store *dataset.Store, logger *log.Logger) func(context.Context, *amqp.DatasetArchivedMessage) error {
	return func(ctx context.Context, msg *amqp.DatasetArchivedMessage) error {
		src := store.Source()
		if msg.SpreadsheetID != src.SpreadsheetID || msg.Range != src.Range {
			logger.DebugContext(ctx, "Ignoring archive for another range",
				log.FieldSpreadsheetID, msg.SpreadsheetID,
				log.FieldRange, msg.Range)
			return nil
		}
		if !msg.Created && store.Ready() {
			return nil
		}
		// A returned error requeues the announcement.
		_, err := store.Refresh(ctx)
		return err
	}
}
