package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"subtrack/internal/rates"
)

// SchedulerConfig holds configuration for the rollover scheduler
type SchedulerConfig struct {
	// Interval is how often the rollover pass runs (default: 1h)
	Interval time.Duration

	// RatesInterval is how often exchange rates are refreshed (default: 1h).
	// Zero disables the rates ticker.
	RatesInterval time.Duration
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:      time.Hour,
		RatesInterval: time.Hour,
	}
}

// RateRefresher is satisfied by *rates.Provider.
type RateRefresher interface {
	Refresh(ctx context.Context) rates.Table
}

// Scheduler runs the rollover processor on a ticker and, optionally, keeps
// the rate cache warm on a second one.
type Scheduler struct {
	processor *RolloverProcessor
	rates     RateRefresher
	config    SchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler. rs may be nil.
func NewScheduler(processor *RolloverProcessor, rs RateRefresher, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		processor: processor,
		rates:     rs,
		config:    config,
	}
}

// Start begins the processing loop. Returns an error if already running.
// A scheduler whose loop ended, by Stop or by ctx, can be started again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	s.running = true
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Rollover scheduler started",
		"interval", s.config.Interval,
		"rates_interval", s.config.RatesInterval)
	return nil
}

// Stop gracefully stops the scheduler and waits for the current pass.
// Concurrent and repeated calls are safe; each waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh = nil
	s.running = false
	s.mu.Unlock()

	if doneCh == nil {
		return nil
	}
	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Rollover scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Rollover scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the loop exits, whether stopped or cancelled.
// It is nil before the first Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

func (s *Scheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		// A later Start owns the fields once it has replaced doneCh.
		if s.doneCh == doneCh {
			s.running = false
		}
		s.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var ratesC <-chan time.Time
	if s.rates != nil && s.config.RatesInterval > 0 {
		ratesTicker := time.NewTicker(s.config.RatesInterval)
		defer ratesTicker.Stop()
		ratesC = ratesTicker.C
	}

	// Process immediately on startup
	s.runOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ratesC:
			t := s.rates.Refresh(ctx)
			slog.DebugContext(ctx, "Scheduled rates refresh", "source", t.Source)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.processor.Process(ctx, time.Now()); err != nil {
		slog.ErrorContext(ctx, "Rollover pass failed", "error", err)
	}
}
