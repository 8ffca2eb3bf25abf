package services

import (
	"context"
	"testing"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	"subtrack/internal/store/memory"
)

func TestRolloverProcessor_Process(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	subs := []core.Subscription{
		{ID: "stale", Name: "Stale", StartDate: core.NewDate(2024, 1, 5), Duration: core.Monthly,
			LastPaymentDate: core.NewDate(2024, 1, 5), NextPaymentDate: core.NewDate(2024, 2, 5)},
		{ID: "critical", Name: "Soon", StartDate: core.NewDate(2024, 2, 12), Duration: core.Monthly,
			LastPaymentDate: core.NewDate(2024, 2, 12), NextPaymentDate: core.NewDate(2024, 3, 12)},
		{ID: "annual", Name: "Yearly", StartDate: core.NewDate(2023, 3, 14), Duration: core.Annually,
			LastPaymentDate: core.NewDate(2023, 3, 14), NextPaymentDate: core.NewDate(2024, 3, 14)},
		{ID: "far", Name: "Later", StartDate: core.NewDate(2024, 2, 28), Duration: core.Monthly,
			LastPaymentDate: core.NewDate(2024, 2, 28), NextPaymentDate: core.NewDate(2024, 3, 28)},
	}

	svc := NewSubscriptionService(memory.New(subs...), nil, nil)
	svc.SetClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	pub := &recordingPublisher{}
	res, err := NewRolloverProcessor(svc, pub).Process(context.Background(), now)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Renewed != 1 || res.Checked != 4 {
		t.Errorf("result = %+v, want 1 renewed of 4", res)
	}
	if res.Reminded != 2 {
		t.Errorf("reminded = %d, want 2", res.Reminded)
	}

	due := map[string]int{}
	for _, ev := range pub.events {
		if ev.Type == amqp.EventDueSoon {
			due[ev.ID] = ev.DaysUntilPayment
		}
	}
	if due["critical"] != 2 || due["annual"] != 4 || len(due) != 2 {
		t.Errorf("due_soon events = %v", due)
	}

	stale, _ := svc.Get(context.Background(), "stale")
	if !stale.NextPaymentDate.Equal(core.NewDate(2024, 4, 5)) {
		t.Errorf("stale next = %s, want 2024-04-05", stale.NextPaymentDate)
	}
}

func TestRolloverProcessor_WithoutPublisher(t *testing.T) {
	svc := NewSubscriptionService(memory.New(), nil, nil)
	_ = svc.Open(context.Background())

	res, err := NewRolloverProcessor(svc, nil).Process(context.Background(), time.Now())
	if err != nil || res.Checked != 0 {
		t.Errorf("res = %+v err = %v", res, err)
	}
}

func TestRolloverProcessor_NotInitialized(t *testing.T) {
	if _, err := (&RolloverProcessor{}).Process(context.Background(), time.Now()); err == nil {
		t.Error("expected error for processor without service")
	}
}

func TestRolloverProcessor_ReloadsBeforeReconcile(t *testing.T) {
	st := memory.New()
	svc := NewSubscriptionService(st, nil, nil)
	_ = svc.Open(context.Background())

	// Written by another process after Open.
	_ = st.SaveAll(context.Background(), []core.Subscription{
		{ID: "external", Name: "External", StartDate: core.NewDate(2024, 1, 5), Duration: core.Monthly},
	})

	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	res, err := NewRolloverProcessor(svc, nil).Process(context.Background(), now)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Checked != 1 || res.Renewed != 1 {
		t.Errorf("result = %+v, want the external record checked and renewed", res)
	}
	persisted, _ := st.LoadAll(context.Background())
	if len(persisted) != 1 || !persisted[0].NextPaymentDate.Equal(core.NewDate(2024, 4, 5)) {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestRolloverProcessor_SkipsUnscheduled(t *testing.T) {
	svc := NewSubscriptionService(memory.New(core.Subscription{ID: "undated", Name: "Undated", Duration: core.Monthly}), nil, nil)
	_ = svc.Open(context.Background())

	pub := &recordingPublisher{}
	res, err := NewRolloverProcessor(svc, pub).Process(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Checked != 1 || res.Reminded != 0 || len(pub.events) != 0 {
		t.Errorf("result = %+v events = %v, want no reminder for an unscheduled record", res, pub.events)
	}
}
