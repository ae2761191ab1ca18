package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(logger.Component(), cfg.LogLevel)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	store, err := cli.OpenStore(startCtx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	logger.Info("Store ready", "backend", cfg.DataBackend)

	cacheManager := cache.NewManager()
	projections, closeCache := cli.ProjectionCache(startCtx, logger, cfg, cacheManager)
	cacheManager.StartCleanup(5 * time.Minute)

	// Publishing is optional; without a broker syncs run inline.
	var (
		publisher  services.SyncPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, syncs will run inline", "error", err)
		} else {
			publisher = amqpClient
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := cli.BuildServices(store.Store, cfg, publisher, projections)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:                ":" + cfg.Port,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		ProjectionMaxMonths: cfg.ProjectionMaxMonths,
	}, apphttp.Dependencies{
		Debts:       store.Store,
		Summary:     svc.Summary,
		DebtPlan:    svc.DebtPlan,
		ZeroBased:   svc.ZeroBased,
		Payments:    svc.Payments,
		Sync:        svc.Sync,
		Projections: svc.Projections,
		Ready:       store.Ping,
	}, logger.WithComponent(applog.ComponentHTTP))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", "error", err)
		}
		cacheManager.Stop()
		if err := closeCache(); err != nil {
			logger.Warn("Failed to close projection cache", "error", err)
		}
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
		logger.Info("Starting server",
			"addr", srv.Addr,
			"backend", cfg.DataBackend,
			"rate_limit_per_minute", cfg.RateLimitPerMinute)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err, "addr", srv.Addr)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
