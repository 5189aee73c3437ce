// Package cli provides common CLI initialization utilities shared by
// cmd/insight and cmd/insight-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insight/internal/backend"
	"insight/internal/config"
	"insight/internal/log"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    os.Stdout,
	}), nil
}

// Bootstrap loads the configuration, sets up the default logger and runs
// validate. It exits the process on any failure.
func Bootstrap(validate func(*config.Config) error) (*config.Config, *log.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.NewDefault().Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		log.NewDefault().Error("Invalid logging configuration", log.FieldError, err)
		os.Exit(1)
	}
	log.SetDefault(logger)

	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenBackend creates the configured row source. With archive set, every
// refresh is also stored in SQLITE_DB_PATH. It exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config, archive bool) *backend.Result {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendCfg.Archive = backendCfg.Archive || archive

	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT, SIGTERM or a call to stop,
// after which cleanup runs with a context bounded by timeout. The channel
// closes once cleanup has returned.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (ctx context.Context, stop context.CancelFunc, done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, cancel, finished
}
