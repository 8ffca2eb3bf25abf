// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/subtrack, cmd/rollover-worker, cmd/reminder-worker and cmd/subs-report.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"subtrack/internal/amqp"
	"subtrack/internal/backend"
	"subtrack/internal/config"
	"subtrack/internal/log"
	"subtrack/internal/rates"
	"subtrack/internal/services"
)

// SetupLogger initializes structured logging at the given level.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads a .env file for local development. An empty path means
// ./.env. A missing file is not an error, as this is optional in production.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// NewBackend creates the configured store.
func NewBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())
	return factory.CreateBackend(ctx, bcfg)
}

// InitBackend is NewBackend that exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	res, err := NewBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// NewRatesProvider builds the exchange-rate provider. snapshots may be nil.
func NewRatesProvider(logger *log.Logger, cfg *config.Config, snapshots rates.SnapshotStore) (*rates.Provider, error) {
	fetcher, err := rates.NewHTTPFetcher(cfg.RatesURL, cfg.RatesTimeout)
	if err != nil {
		return nil, fmt.Errorf("create rates fetcher: %w", err)
	}
	opts := []rates.Option{
		rates.WithTTL(cfg.RatesTTL),
		rates.WithLogger(logger.Slog()),
	}
	if snapshots != nil {
		opts = append(opts, rates.WithSnapshots(snapshots))
	}
	return rates.NewProvider(fetcher, opts...), nil
}

// InitRatesProvider is NewRatesProvider that exits the process on failure.
func InitRatesProvider(logger *log.Logger, cfg *config.Config, snapshots rates.SnapshotStore) *rates.Provider {
	p, err := NewRatesProvider(logger, cfg, snapshots)
	if err != nil {
		logger.Error("Failed to initialize exchange rates", log.FieldError, err, "url", cfg.RatesURL)
		os.Exit(1)
	}
	return p
}

// InitAMQP connects to the broker when AMQP_URL is set. It returns nil when
// events are disabled or the broker cannot be reached.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP not configured, subscription events disabled")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to connect to AMQP, subscription events disabled", log.FieldError, err)
		return nil
	}
	logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// AsPublisher returns c as an EventPublisher, or a nil interface when c is nil
// so the service sees no publisher at all.
func AsPublisher(c *amqp.Client) services.EventPublisher {
	if c == nil {
		return nil
	}
	return c
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
