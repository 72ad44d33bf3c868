package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"sheetpipe/internal/amqp"
	"sheetpipe/internal/config"
	applog "sheetpipe/internal/log"
	"sheetpipe/internal/core"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/router"
	"sheetpipe/internal/services"
	"sheetpipe/internal/sheets"
	gsheet "sheetpipe/internal/sheets/google"
	"sheetpipe/internal/staging"
	stagingmongo "sheetpipe/internal/staging/mongo"
	"sheetpipe/internal/warehouse"
)

// sheets-pull reads one spreadsheet range from Google Sheets and stages it
// as an import job, exactly as if the rows had arrived as an upload. Run it
// from cron for recurring pulls.
func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.JSONConfig(slog.LevelInfo, applog.ComponentSheets))
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" || cfg.SheetsDataset == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID and SHEETS_DATASET are required for sheet pulls")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var reader sheets.TableReader
	client, err := gsheet.NewClient(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		Range:           cfg.GoogleSheetRange,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	reader = client

	registry := mapping.NewRegistry()

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
		logger.Error("Sheet pulls need a shared staging backend, set STAGING_BACKEND=mongo")
		os.Exit(1)
	}

	repo, err := warehouse.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	var notifier services.StagedNotifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, worker will pick the job up by polling", "error", err)
		} else {
			defer amqpClient.Close()
			notifier = amqpClient
		}
	}

	extraTokens, err := cfg.ExtraRouteTokens()
	if err != nil {
		logger.Error("Invalid ROUTER_EXTRA_TOKENS", "error", err)
		os.Exit(1)
	}
	svc := services.NewIngestService(router.NewDefault(extraTokens), registry, stagingStore, repo, notifier)

	table, err := reader.ReadTable(ctx)
	if err != nil {
		logger.Error("Failed to read spreadsheet", "error", err, "source", reader.Source())
		os.Exit(1)
	}

	job, err := svc.IngestTable(ctx, core.Dataset(cfg.SheetsDataset), reader.Source(), table)
	if err != nil {
		logger.Error("Sheet ingest failed", "error", err, "dataset", cfg.SheetsDataset, "source", reader.Source())
		os.Exit(1)
	}

	logger.Info("Sheet staged for loading",
		"job_id", job.ID,
		"dataset", job.Dataset,
		"rows_staged", job.RowsStaged,
		"source", job.SourceFile)
}
