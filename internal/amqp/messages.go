package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"subtrack/internal/core"
)

// EventType names what happened to a subscription.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	// EventRenewed is emitted when the schedule rolled past a payment.
	EventRenewed EventType = "renewed"
	// EventDueSoon is emitted by the rollover worker for payments in the critical band.
	EventDueSoon EventType = "due_soon"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted, EventRenewed, EventDueSoon:
		return true
	default:
		return false
	}
}

// SubscriptionEvent is a self-contained notification; consumers never need
// to read the store to act on it.
type SubscriptionEvent struct {
	Type             EventType     `json:"type"`
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Currency         core.Currency `json:"currency"`
	MonthlyPrice     float64       `json:"monthlyPrice"`
	NextPaymentDate  core.Date     `json:"nextPaymentDate,omitzero"`
	DaysUntilPayment int           `json:"daysUntilPayment"`
	Timestamp        time.Time     `json:"timestamp"`
}

// NewSubscriptionEvent builds an event for s. daysUntil is computed by the
// caller because it depends on the caller's notion of today.
func NewSubscriptionEvent(t EventType, s core.Subscription, daysUntil int) SubscriptionEvent {
	return SubscriptionEvent{
		Type:             t,
		ID:               s.ID,
		Name:             s.Name,
		Currency:         s.Currency,
		MonthlyPrice:     s.MonthlyPrice,
		NextPaymentDate:  s.NextPaymentDate,
		DaysUntilPayment: daysUntil,
		Timestamp:        time.Now(),
	}
}

// Validate rejects events a consumer cannot act on.
func (e SubscriptionEvent) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ID == "" {
		return errors.New("event without subscription id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e SubscriptionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SubscriptionEventFromJSON decodes and validates an event.
func SubscriptionEventFromJSON(data []byte) (*SubscriptionEvent, error) {
	var e SubscriptionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
