package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(logger.Component(), cfg.LogLevel)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	store, err := cli.OpenStore(startCtx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	carryover := services.NewCarryoverProcessor(store.Store, cfg.Carryover())
	sweeper := services.NewSweepProcessor(store.Store, carryover, cfg.Sweep())

	// Without a broker the worker only sweeps.
	var (
		consumer   worker.PlanSyncConsumer
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		consumer = amqpClient
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	syncWorker := worker.NewSyncWorker(carryover, consumer, sweeper)

	runDone := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		select {
		case <-runDone:
		case <-shutdownCtx.Done():
			logger.Warn("Worker did not stop before shutdown timeout")
		}
		last := sweeper.LastSweep()
		logger.Info("Last plan sweep",
			"started", last.Started,
			"plans", last.Plans,
			"failed", last.Failed,
			"elapsed", last.Elapsed)
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	})

	go func() {
		defer close(runDone)
		logger.Info("Starting plan sync worker",
			"sweep_interval", cfg.SyncInterval,
			"queue_enabled", consumer != nil)
		if err := syncWorker.Run(ctx); err != nil {
			logger.Error("Worker stopped with error", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
