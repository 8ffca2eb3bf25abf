package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/GiGurra/boa/pkg/boa"

	"subtrack/internal/cli"
	"subtrack/internal/config"
	"subtrack/internal/log"
	"subtrack/internal/rates"
	"subtrack/internal/report"
	"subtrack/internal/services"
)

type Params struct {
	Sort    string `descr:"Sort order" default:"name-asc" alts:"name-asc,name-desc,price-asc,price-desc,date-asc,date-desc,urgency-asc,urgency-desc" strict:"true"`
	EnvFile string `descr:"Path to a .env file with backend settings" default:".env"`
	Offline bool   `descr:"Use the built-in exchange rates instead of fetching them" default:"false"`
	Color   bool   `descr:"Colorize urgency and totals" default:"true"`
}

func main() {
	boa.NewCmdT[Params]("subs-report").
		WithShort("Print subscriptions and their totals").
		WithLong("Loads the configured backend, brings payment schedules up to date in memory and prints the sorted list with per-currency and base-currency totals. Subscriptions in the store are not modified.").
		WithRunFunc(func(params *Params) {
			if err := run(context.Background(), params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(ctx context.Context, params *Params) error {
	if err := cli.LoadEnvFile(params.EnvFile); err != nil {
		return err
	}

	// Logs go to stderr so the report can be piped
	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(envOr("LOG_LEVEL", "warn"))
	logCfg.Component = log.ComponentReport
	logCfg.Output = os.Stderr
	logger := log.New(logCfg)
	log.SetDefault(logger)

	by, err := services.ParseSortBy(params.Sort)
	if err != nil {
		return err
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := cli.NewBackend(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer store.Close()

	table := rates.Fallback()
	if !params.Offline {
		provider, err := cli.NewRatesProvider(logger, cfg, store.Snapshots)
		if err != nil {
			return err
		}
		if err := provider.Restore(ctx); err != nil {
			logger.Warn("Failed to restore exchange rate snapshot", log.FieldError, err)
		}
		table = provider.Get(ctx)
	}

	service := services.NewSubscriptionService(store.Store, nil, nil)
	if err := service.Reload(ctx); err != nil {
		return err
	}

	now := time.Now()
	today := services.Today(now)
	subs := service.Snapshot()
	for i, s := range subs {
		subs[i] = services.RollForward(s, today)
	}

	totals := services.CurrencyTotals{
		ByCurrency: services.Aggregate(subs),
		Base:       services.AggregateInBase(subs, table),
		Count:      len(subs),
	}
	report.PrintSubscriptionsTable(os.Stdout, services.Sort(subs, by, now), totals, report.Options{
		Color: params.Color,
		Now:   now,
	})
	logger.Debug("Report printed", "summary", report.Summary(totals))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
