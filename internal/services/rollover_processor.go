package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/amqp"
)

// RolloverResult summarizes one processing pass.
type RolloverResult struct {
	Renewed  int
	Reminded int
	Checked  int
}

// RolloverProcessor advances stale schedules and announces payments that are
// about to fall due.
type RolloverProcessor struct {
	service   *SubscriptionService
	publisher EventPublisher
}

// NewRolloverProcessor creates a processor. Without a publisher it only reconciles.
func NewRolloverProcessor(service *SubscriptionService, publisher EventPublisher) *RolloverProcessor {
	return &RolloverProcessor{
		service:   service,
		publisher: publisher,
	}
}

// Process reloads the collection from the store, reconciles it, then
// publishes a due_soon event for every subscription in the critical band.
// The store is reread first so records written by another process since the
// last pass survive the save.
func (p *RolloverProcessor) Process(ctx context.Context, now time.Time) (RolloverResult, error) {
	if p.service == nil {
		return RolloverResult{}, errors.New("processor not properly initialized")
	}

	if err := p.service.Reload(ctx); err != nil {
		return RolloverResult{}, fmt.Errorf("reload: %w", err)
	}
	renewed, err := p.service.Reconcile(ctx, now)
	if err != nil {
		return RolloverResult{}, fmt.Errorf("reconcile: %w", err)
	}

	today := Today(now)
	subs := p.service.Snapshot()
	res := RolloverResult{Renewed: renewed, Checked: len(subs)}

	for _, sub := range subs {
		a := Assess(sub, today)
		if !a.Scheduled || a.Urgency.Band != BandCritical {
			continue
		}
		days := a.Days
		if p.publisher == nil {
			slog.InfoContext(ctx, "Payment due soon",
				"subscription_id", sub.ID,
				"name", sub.Name,
				"days_until_payment", days)
			res.Reminded++
			continue
		}
		ev := amqp.NewSubscriptionEvent(amqp.EventDueSoon, sub, days)
		if err := p.publisher.PublishEvent(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "Failed to publish due soon event",
				"subscription_id", sub.ID,
				"error", err)
			continue
		}
		res.Reminded++
	}

	slog.InfoContext(ctx, "Rollover processing complete",
		"renewed", res.Renewed,
		"reminded", res.Reminded,
		"checked", res.Checked,
		"processing_date", today.String())
	return res, nil
}
