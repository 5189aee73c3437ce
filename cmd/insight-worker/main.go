package main

import (
	"context"
	"errors"
	"os"
	"time"

	"insight/internal/amqp"
	"insight/internal/cli"
	"insight/internal/config"
	"insight/internal/log"
	"insight/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap((*config.Config).ValidateWorker)
	logger.Info("Starting insight-worker")

	// The worker reads the live source and always archives what it reads.
	res := cli.OpenBackend(context.Background(), logger, cfg, true)
	defer res.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	for queue, key := range map[string]string{
		cfg.AMQPRefreshQueue: amqp.RoutingKeyRefresh,
		cfg.AMQPEventsQueue:  amqp.RoutingKeyArchived,
	} {
		if err := amqpClient.Declare(queue, key); err != nil {
			logger.Error("Failed to declare queue", log.FieldError, err, log.FieldQueue, queue)
			os.Exit(1)
		}
	}

	refreshWorker := worker.NewRefreshWorker(res.Fetcher, res.Archiver, amqpClient, logger, cfg.FetchTimeout)

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Archive the current sheet so dashboards on the sqlite backend can start.
	if err := refreshWorker.StartupRefresh(ctx); err != nil {
		logger.Error("Startup refresh failed", log.FieldError, err)
		// Don't exit - requests may succeed once the sheet is fixed
	}

	err = amqpClient.ConsumeRefreshRequests(ctx, cfg.AMQPRefreshQueue, refreshWorker.HandleRefreshRequest)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
	}
	stop()
	<-done
	logger.Info("Worker shutdown complete")
}
