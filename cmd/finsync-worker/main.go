package main

import (
	"context"
	"errors"
	"os"

	"finsync/internal/amqp"
	"finsync/internal/cli"
	"finsync/internal/core"
	"finsync/internal/events"
	"finsync/internal/log"
	"finsync/internal/sheets"
	gsheet "finsync/internal/sheets/google"
	"finsync/internal/sheets/memory"
	"finsync/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	defer logger.Sync()

	logger.Info("Starting finsync-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	var exporter sheets.TransactionExporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		exporter = client
		logger.Info("Google Sheets client initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		exporter = memory.New()
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
	}

	amqpClient, err := amqp.NewClient(amqp.Config{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
		Bindings: []string{
			events.TypeOf(core.KindTransaction, events.ActionConfirmed),
			events.TypeOf(core.KindTransaction, events.ActionUpdated),
			events.TypeOf(core.KindTransaction, events.ActionDeleted),
		},
	}, logger.WithComponent(log.ComponentAMQP).Logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(exporter, logger.WithComponent(log.ComponentSheets).Logger)

	if err := amqpClient.Consume(ctx, exportWorker.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
