package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	"subtrack/internal/rates"
	"subtrack/internal/store"
)

var ErrNotFound = errors.New("subscription not found")

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev amqp.SubscriptionEvent) error
}

// RateSource is satisfied by *rates.Provider. Current must not block on a
// network fetch.
type RateSource interface {
	Current(ctx context.Context) rates.Table
}

// CurrencyTotals is the response of Totals: both aggregation views side by side.
type CurrencyTotals struct {
	ByCurrency map[core.Currency]Totals `json:"byCurrency"`
	Base       BaseTotals               `json:"base"`
	Count      int                      `json:"count"`
}

// SubscriptionService owns the subscription collection. Every mutation is
// applied in memory and then handed to the store as a whole.
type SubscriptionService struct {
	store     store.Store
	rates     RateSource
	publisher EventPublisher
	now       func() time.Time

	mu   sync.RWMutex
	subs []core.Subscription
}

// NewSubscriptionService creates the service. rates and publisher may be nil:
// without rates the fallback table is used, without a publisher no events are
// emitted.
func NewSubscriptionService(st store.Store, rs RateSource, pub EventPublisher) *SubscriptionService {
	return &SubscriptionService{
		store:     st,
		rates:     rs,
		publisher: pub,
		now:       time.Now,
	}
}

// SetClock replaces time.Now. Used by tests.
func (s *SubscriptionService) SetClock(now func() time.Time) {
	s.now = now
}

// Open loads the collection and reconciles it against today.
func (s *SubscriptionService) Open(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	_, err := s.Reconcile(ctx, s.now())
	return err
}

// Reload replaces the in-memory collection with what the store holds.
// Unreadable data is logged and replaced by an empty collection.
func (s *SubscriptionService) Reload(ctx context.Context) error {
	subs, err := s.store.LoadAll(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrMalformed) {
			return fmt.Errorf("load subscriptions: %w", err)
		}
		slog.WarnContext(ctx, "Persisted subscriptions unreadable, starting empty", "error", err)
		subs = nil
	}

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()

	slog.DebugContext(ctx, "Subscriptions loaded", "count", len(subs))
	return nil
}

// Reconcile rolls every record forward to today, backfilling legacy
// schedules. The store is written only when something changed. Records with
// an unsupported duration are left alone.
func (s *SubscriptionService) Reconcile(ctx context.Context, now time.Time) (int, error) {
	today := Today(now)

	s.mu.Lock()
	next := make([]core.Subscription, len(s.subs))
	var renewed []core.Subscription
	for i, sub := range s.subs {
		rolled, changed, err := RollForwardChecked(sub, today)
		if err != nil {
			slog.WarnContext(ctx, "Cannot advance subscription schedule",
				"subscription_id", sub.ID,
				"duration", sub.Duration,
				"error", err)
		}
		next[i] = rolled
		if changed {
			renewed = append(renewed, rolled)
		}
	}
	if len(renewed) == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	if err := s.store.SaveAll(ctx, next); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("save reconciled subscriptions: %w", err)
	}
	s.subs = next
	s.mu.Unlock()

	slog.InfoContext(ctx, "Subscription schedules advanced", "count", len(renewed))
	for _, sub := range renewed {
		s.publish(ctx, amqp.EventRenewed, sub, today)
	}
	return len(renewed), nil
}

// Create validates the input, derives both prices and the first schedule, and
// puts the new record at the front of the collection.
func (s *SubscriptionService) Create(ctx context.Context, in core.SubscriptionInput) (core.Subscription, error) {
	if err := in.Validate(); err != nil {
		return core.Subscription{}, err
	}
	today := Today(s.now())
	sub, err := schedule(in.Apply(core.Subscription{ID: uuid.NewString()}), today)
	if err != nil {
		return core.Subscription{}, err
	}

	s.mu.Lock()
	next := slices.Insert(slices.Clone(s.subs), 0, sub)
	if err := s.store.SaveAll(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Subscription{}, fmt.Errorf("save subscription: %w", err)
	}
	s.subs = next
	s.mu.Unlock()

	slog.InfoContext(ctx, "Subscription created",
		"subscription_id", sub.ID,
		"name", sub.Name,
		"currency", sub.Currency)
	s.publish(ctx, amqp.EventCreated, sub, today)
	return sub, nil
}

// Update replaces the editable fields of id. The schedule is rebuilt when the
// start date or duration changed, otherwise kept.
func (s *SubscriptionService) Update(ctx context.Context, id string, in core.SubscriptionInput) (core.Subscription, error) {
	if err := in.Validate(); err != nil {
		return core.Subscription{}, err
	}
	today := Today(s.now())

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return core.Subscription{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	old := s.subs[idx]
	sub := in.Apply(old)
	if !old.StartDate.Equal(sub.StartDate) || old.Duration != sub.Duration {
		sub.LastPaymentDate = core.Date{}
		sub.NextPaymentDate = core.Date{}
	}
	sub, err := schedule(sub, today)
	if err != nil {
		s.mu.Unlock()
		return core.Subscription{}, err
	}

	next := slices.Clone(s.subs)
	next[idx] = sub
	if err := s.store.SaveAll(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Subscription{}, fmt.Errorf("save subscription: %w", err)
	}
	s.subs = next
	s.mu.Unlock()

	slog.InfoContext(ctx, "Subscription updated", "subscription_id", id)
	s.publish(ctx, amqp.EventUpdated, sub, today)
	return sub, nil
}

func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.subs[idx]
	next := slices.Delete(slices.Clone(s.subs), idx, idx+1)
	if err := s.store.SaveAll(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete subscription: %w", err)
	}
	s.subs = next
	s.mu.Unlock()

	slog.InfoContext(ctx, "Subscription deleted", "subscription_id", id)
	s.publish(ctx, amqp.EventDeleted, removed, Today(s.now()))
	return nil
}

func (s *SubscriptionService) Get(_ context.Context, id string) (core.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return core.Subscription{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.subs[idx], nil
}

// List reconciles, then returns the collection ordered by the criterion.
func (s *SubscriptionService) List(ctx context.Context, by SortBy, now time.Time) ([]core.Subscription, error) {
	if _, err := s.Reconcile(ctx, now); err != nil {
		slog.WarnContext(ctx, "Reconcile before list failed", "error", err)
	}
	return Sort(s.Snapshot(), by, now), nil
}

// Totals reconciles, then aggregates per currency and in the base currency.
// The base view uses whatever rate table is at hand; it never waits on a fetch.
func (s *SubscriptionService) Totals(ctx context.Context, now time.Time) (CurrencyTotals, error) {
	if _, err := s.Reconcile(ctx, now); err != nil {
		slog.WarnContext(ctx, "Reconcile before totals failed", "error", err)
	}
	subs := s.Snapshot()
	table := rates.Fallback()
	if s.rates != nil {
		table = s.rates.Current(ctx)
	}
	return CurrencyTotals{
		ByCurrency: Aggregate(subs),
		Base:       AggregateInBase(subs, table),
		Count:      len(subs),
	}, nil
}

// Snapshot returns a copy of the collection in stored order.
func (s *SubscriptionService) Snapshot() []core.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.subs)
}

func (s *SubscriptionService) indexOf(id string) int {
	return slices.IndexFunc(s.subs, func(sub core.Subscription) bool { return sub.ID == id })
}

// schedule backfills a missing schedule and rolls it forward to today.
func schedule(sub core.Subscription, today core.Date) (core.Subscription, error) {
	rolled, _, err := RollForwardChecked(sub, today)
	if err != nil {
		return core.Subscription{}, err
	}
	return rolled, nil
}

func (s *SubscriptionService) publish(ctx context.Context, t amqp.EventType, sub core.Subscription, today core.Date) {
	if s.publisher == nil {
		return
	}
	ev := amqp.NewSubscriptionEvent(t, sub, DaysUntilPayment(sub, today))
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish subscription event",
			"type", t,
			"subscription_id", sub.ID,
			"error", err)
	}
}
