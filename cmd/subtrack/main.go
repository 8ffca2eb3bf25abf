package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"subtrack/internal/cli"
	apphttp "subtrack/internal/http"
	"subtrack/internal/log"
	"subtrack/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = cli.LoadEnvFile("")

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	store := cli.InitBackend(ctx, logger, cfg)
	defer store.Close()

	provider := cli.InitRatesProvider(logger, cfg, store.Snapshots)

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	service := services.NewSubscriptionService(store.Store, provider, cli.AsPublisher(amqpClient))

	// Load the collection and warm the rate cache concurrently
	warmup, warmupCtx := errgroup.WithContext(ctx)
	warmup.Go(func() error {
		return service.Open(warmupCtx)
	})
	warmup.Go(func() error {
		if err := provider.Restore(warmupCtx); err != nil {
			logger.Warn("Failed to restore exchange rate snapshot", log.FieldError, err)
		}
		table := provider.Get(warmupCtx)
		logger.Info("Exchange rates ready", log.FieldRatesSource, table.Source, "date", table.Date)
		return nil
	})
	if err := warmup.Wait(); err != nil {
		logger.Error("Failed to load subscriptions", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	var scheduler *services.Scheduler
	if cfg.RolloverInProcess {
		processor := services.NewRolloverProcessor(service, cli.AsPublisher(amqpClient))
		scheduler = services.NewScheduler(processor, provider, services.SchedulerConfig{
			Interval:      cfg.RolloverInterval,
			RatesInterval: cfg.RatesTTL,
		})
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:         ":" + cfg.Port,
		Service:      service,
		Rates:        provider,
		Ready:        store.Ping,
		RefreshLimit: cfg.RefreshRateLimit,
		Logger:       logger.WithComponent(log.ComponentHTTP),
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				logger.Error("Scheduler shutdown error", log.FieldError, err)
			}
		}
	})

	if scheduler != nil {
		if err := scheduler.Start(runCtx); err != nil {
			logger.Error("Failed to start rollover scheduler", log.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("Starting subtrack server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"rollover_in_process", cfg.RolloverInProcess)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Server stopped gracefully")
}
