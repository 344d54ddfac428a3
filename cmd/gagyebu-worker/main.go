package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/amqp"
	"gagyebu/internal/backend"
	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	"gagyebu/internal/log"
	"gagyebu/internal/storage"
	"gagyebu/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).Validate, (*config.Config).ValidateWorker)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker exited with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext()
	defer stop()

	logger.InfoContext(ctx, "Starting gagyebu-worker", log.FieldOperation, log.OpStartup)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	defer repo.Close()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	writer, err := backend.NewFactory(logger).CreateSheetsWriter(ctx, backendConfig)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(repo, writer, cfg.SyncBatchSize, logger)

	// Catch up on anything saved while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.ErrorContext(ctx, "Startup sync check failed", log.FieldError, err)
	}

	processor := worker.NewProcessor(syncWorker, cfg.SyncInterval)
	if err := processor.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(gctx, syncWorker.HandleSyncMessage)
	})
	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := processor.Stop(stopCtx); stopErr != nil {
		logger.Warn("Sync processor did not stop cleanly", log.FieldError, stopErr)
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
		return nil
	}
	return err
}
