package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"sheetpipe/internal/amqp"
	"sheetpipe/internal/config"
	applog "sheetpipe/internal/log"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/services"
	"sheetpipe/internal/staging"
	stagingmem "sheetpipe/internal/staging/memory"
	stagingmongo "sheetpipe/internal/staging/mongo"
	"sheetpipe/internal/warehouse"
	"sheetpipe/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.JSONConfig(slog.LevelInfo, applog.ComponentWorker))
	applog.SetDefault(logger)

	logger.Info("Starting sheetpipe-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := mapping.NewRegistry()

	// Staging store must be shared with the upload server, which in
	// practice means MongoDB. The memory backend only serves local runs
	// where both roles live in one process.
	var stagingStore staging.RecordStore
	switch cfg.StagingBackend {
	case "mongo":
		store, err := stagingmongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err, "uri", cfg.MongoURI)
			os.Exit(1)
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = store.Close(closeCtx)
		}()
		stagingStore = store
	default:
		stagingStore = stagingmem.New()
		logger.Warn("Using in-memory staging backend, the worker cannot see rows staged by another process")
	}

	repo, err := warehouse.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	loader := worker.NewLoader(stagingStore, registry, repo, cfg.LoadBatchSize)

	processor := services.NewEtlProcessor(repo, loader, services.EtlProcessorConfig{
		PollInterval:    cfg.EtlPollEvery,
		BatchSize:       cfg.EtlBatchSize,
		MaxRetries:      cfg.EtlMaxRetries,
		CleanupInterval: cfg.CleanupEvery,
		CleanupAge:      cfg.CleanupKeepFor,
		StaleAge:        cfg.StaleResetAge,
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start etl processor", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	// AMQP is a wakeup channel only. The durable queue in Postgres is the
	// source of truth, so a missing broker just means poll latency.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on queue polling", "error", err)
		} else {
			defer amqpClient.Close()
			g.Go(func() error {
				err := amqpClient.ConsumeJobStaged(gctx, func(msg *amqp.JobStagedMessage) error {
					return processor.ProcessJob(gctx, msg.JobID)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			logger.Info("Consuming staged-job messages", "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", "error", err)
	}

	logger.Info("Shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Error("Processor shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
