package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/amqp"
	"subtrack/internal/cache"
	"subtrack/internal/core"
	"subtrack/internal/services"
)

const (
	// A payment is reminded at most once per due date within this window.
	reminderDedupTTL  = 72 * time.Hour
	reminderDedupSize = 4096
)

// Reminder is a payment notice ready to be shown to a person.
type Reminder struct {
	SubscriptionID string
	Name           string
	DueDate        core.Date
	DaysUntil      int
	Message        string
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, r Reminder) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Payment reminder",
		"subscription_id", r.SubscriptionID,
		"next_payment_date", r.DueDate.String(),
		"days_until_payment", r.DaysUntil,
		"message", r.Message)
	return nil
}

// Stats counts what the worker did with the events it received.
type Stats struct {
	Received   int64
	Reminded   int64
	Duplicates int64
	Ignored    int64
}

// ReminderWorker turns due_soon and renewed events into reminders.
type ReminderWorker struct {
	notifier Notifier
	sent     *cache.LRUCache[struct{}]

	received   atomic.Int64
	reminded   atomic.Int64
	duplicates atomic.Int64
	ignored    atomic.Int64
}

func NewReminderWorker(notifier Notifier) *ReminderWorker {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ReminderWorker{
		notifier: notifier,
		sent:     cache.NewLRUCache[struct{}](reminderDedupSize, reminderDedupTTL),
	}
}

// DedupCache exposes the sent-reminder cache so a cache.Manager can sweep it.
func (w *ReminderWorker) DedupCache() *cache.LRUCache[struct{}] {
	return w.sent
}

// HandleEvent processes a single subscription event from AMQP. Events other
// than due_soon and renewed are acknowledged and ignored. A failing notifier
// returns an error so the message is requeued.
func (w *ReminderWorker) HandleEvent(ctx context.Context, ev *amqp.SubscriptionEvent) error {
	w.received.Add(1)

	slog.DebugContext(ctx, "Processing subscription event",
		"type", ev.Type,
		"subscription_id", ev.ID)

	switch ev.Type {
	case amqp.EventDueSoon:
		// always reminded
	case amqp.EventRenewed:
		slog.InfoContext(ctx, "Subscription renewed",
			"subscription_id", ev.ID,
			"name", ev.Name,
			"next_payment_date", ev.NextPaymentDate.String())
		if !services.DueSoon(ev.DaysUntilPayment) {
			return nil
		}
	default:
		w.ignored.Add(1)
		return nil
	}

	key := ev.ID + "|" + ev.NextPaymentDate.String()
	if _, seen := w.sent.Get(key); seen {
		w.duplicates.Add(1)
		slog.DebugContext(ctx, "Reminder already sent", "subscription_id", ev.ID)
		return nil
	}

	r := newReminder(ev)
	if err := w.notifier.Notify(ctx, r); err != nil {
		return fmt.Errorf("notify %s: %w", ev.ID, err)
	}
	w.sent.Set(key, struct{}{})
	w.reminded.Add(1)
	return nil
}

// GetStats returns a snapshot of the counters.
func (w *ReminderWorker) GetStats() Stats {
	return Stats{
		Received:   w.received.Load(),
		Reminded:   w.reminded.Load(),
		Duplicates: w.duplicates.Load(),
		Ignored:    w.ignored.Load(),
	}
}

func newReminder(ev *amqp.SubscriptionEvent) Reminder {
	amount := core.FormatAmount(decimal.NewFromFloat(ev.MonthlyPrice), ev.Currency)
	return Reminder{
		SubscriptionID: ev.ID,
		Name:           ev.Name,
		DueDate:        ev.NextPaymentDate,
		DaysUntil:      ev.DaysUntilPayment,
		Message: fmt.Sprintf("%s: %s/month, %s (%s)", ev.Name, amount,
			strings.ToLower(services.StatusText(ev.DaysUntilPayment)), ev.NextPaymentDate),
	}
}
