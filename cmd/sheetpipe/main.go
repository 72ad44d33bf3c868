package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sheetpipe/internal/amqp"
	"sheetpipe/internal/config"
	apphttp "sheetpipe/internal/http"
	applog "sheetpipe/internal/log"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/router"
	"sheetpipe/internal/services"
	"sheetpipe/internal/staging"
	stagingmem "sheetpipe/internal/staging/memory"
	stagingmongo "sheetpipe/internal/staging/mongo"
	"sheetpipe/internal/warehouse"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.JSONConfig(slog.LevelInfo, applog.ComponentApp))
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := mapping.NewRegistry()
	extraTokens, err := cfg.ExtraRouteTokens()
	if err != nil {
		logger.Error("Invalid ROUTER_EXTRA_TOKENS", "error", err)
		os.Exit(1)
	}
	rt := router.NewDefault(extraTokens)

	// Staging backend
	var stagingStore staging.RecordStore
	switch cfg.StagingBackend {
	case "mongo":
		store, err := stagingmongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err, "uri", cfg.MongoURI)
			os.Exit(1)
		}
		if err := store.EnsureIndexes(ctx, registry.Datasets()); err != nil {
			logger.Error("Failed to ensure staging indexes", "error", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = store.Close(closeCtx)
		}()
		stagingStore = store
		logger.Info("Initialized MongoDB staging backend", "database", cfg.MongoDatabase)
	default:
		stagingStore = stagingmem.New()
		logger.Warn("Using in-memory staging backend, staged rows are lost on restart")
	}

	// Warehouse (runs migrations on connect)
	repo, err := warehouse.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP wakeup for the worker is best effort, the durable queue covers
	// lost messages.
	var notifier services.StagedNotifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, worker will rely on polling", "error", err)
		} else {
			defer amqpClient.Close()
			notifier = amqpClient
			logger.Info("AMQP notifier initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	ingestSvc := services.NewIngestService(rt, registry, stagingStore, repo, notifier).
		WithXLSXSheet(cfg.XLSXSheet)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Datasets:       registry.Datasets(),
	}, ingestSvc, repo, stagingStore)

	srv.ReadTimeout = 60 * time.Second // uploads can be slow on bad links
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting sheetpipe server", "port", cfg.Port, "staging_backend", cfg.StagingBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
