package http

import (
	"time"

	"subtrack/internal/core"
	"subtrack/internal/services"
)

// SubscriptionView is a subscription together with the values derived from
// today's date. It is what list and detail endpoints return.
type SubscriptionView struct {
	core.Subscription
	Scheduled        bool             `json:"scheduled"`
	DaysUntilPayment int              `json:"daysUntilPayment"`
	Urgency          services.Urgency `json:"urgency"`
	Status           string           `json:"status"`
	DueSoon          bool             `json:"dueSoon"`
}

func newSubscriptionView(s core.Subscription, today core.Date) SubscriptionView {
	a := services.Assess(s, today)
	return SubscriptionView{
		Subscription:     s,
		Scheduled:        a.Scheduled,
		DaysUntilPayment: a.Days,
		Urgency:          a.Urgency,
		Status:           a.Status,
		DueSoon:          a.DueSoon,
	}
}

func newSubscriptionViews(subs []core.Subscription, now time.Time) []SubscriptionView {
	today := services.Today(now)
	views := make([]SubscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, newSubscriptionView(s, today))
	}
	return views
}
