package main

import (
	"context"
	"os"
	"time"

	"subtrack/internal/cli"
	"subtrack/internal/log"
	"subtrack/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = cli.LoadEnvFile("")

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting rollover-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.RolloverInProcess {
		logger.Warn("ROLLOVER_IN_PROCESS is enabled, the server already runs rollover; two writers may overwrite each other")
	}

	ctx := context.Background()

	store := cli.InitBackend(ctx, logger, cfg)
	defer store.Close()

	provider := cli.InitRatesProvider(logger, cfg, store.Snapshots)
	if err := provider.Restore(ctx); err != nil {
		logger.Warn("Failed to restore exchange rate snapshot", log.FieldError, err)
	}

	// The rollover worker is the producer of reminder events. Without AMQP it
	// still keeps schedules current.
	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}
	publisher := cli.AsPublisher(amqpClient)

	service := services.NewSubscriptionService(store.Store, provider, publisher)
	processor := services.NewRolloverProcessor(service, publisher)
	scheduler := services.NewScheduler(processor, provider, services.SchedulerConfig{
		Interval:      cfg.RolloverInterval,
		RatesInterval: cfg.RatesTTL,
	})

	logger.Info("Rollover processor configured",
		"interval", cfg.RolloverInterval,
		log.FieldBackend, cfg.DataBackend,
		"events", amqpClient != nil)

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler shutdown error", log.FieldError, err)
		}
	})

	// The scheduler runs a first pass immediately, which also loads the store
	if err := scheduler.Start(runCtx); err != nil {
		logger.Error("Failed to start rollover scheduler", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Rollover-worker shutdown complete")
}
