package main

import (
	"context"
	"errors"
	"os"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/cache"
	"subtrack/internal/cli"
	"subtrack/internal/log"
	"subtrack/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = cli.LoadEnvFile("")

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting reminder-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the reminder worker")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	reminders := worker.NewReminderWorker(worker.LogNotifier{Logger: logger.Slog()})

	cacheManager := cache.NewManager()
	cacheManager.Register(reminders.DedupCache())
	cacheManager.StartCleanup(time.Hour)

	consumerDone := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
		}
		cacheManager.Stop()
		stats := reminders.GetStats()
		logger.Info("Reminder statistics",
			"received", stats.Received,
			"reminded", stats.Reminded,
			"duplicates", stats.Duplicates,
			"ignored", stats.Ignored)
	})

	logger.Info("Reminder worker started, consuming events", "queue", cfg.AMQPQueue)
	go func() {
		defer close(consumerDone)
		if err := amqpClient.ConsumeEvents(ctx, reminders.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder-worker shutdown complete")
}
