package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	"subtrack/internal/rates"
	"subtrack/internal/store"
	"subtrack/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.SubscriptionEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev amqp.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type staticRates struct{ table rates.Table }

func (s staticRates) Current(context.Context) rates.Table { return s.table }

type failingStore struct {
	loadErr error
	saveErr error
}

func (f failingStore) LoadAll(context.Context) ([]core.Subscription, error) {
	return []core.Subscription{}, f.loadErr
}

func (f failingStore) SaveAll(context.Context, []core.Subscription) error {
	return f.saveErr
}

var serviceNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, seed ...core.Subscription) (*SubscriptionService, *memory.Store, *recordingPublisher) {
	t.Helper()
	st := memory.New(seed...)
	pub := &recordingPublisher{}
	svc := NewSubscriptionService(st, staticRates{rates.Fallback()}, pub)
	svc.SetClock(func() time.Time { return serviceNow })
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc, st, pub
}

func netflixInput() core.SubscriptionInput {
	return core.SubscriptionInput{
		Name:      "Netflix",
		Category:  "Entertainment",
		Payer:     "Personal",
		StartDate: core.NewDate(2024, 1, 15),
		Duration:  core.Monthly,
		Price:     decimal.RequireFromString("15.49"),
		Currency:  core.USD,
	}
}

func TestSubscriptionService_Create(t *testing.T) {
	svc, st, pub := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, netflixInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if sub.ID == "" {
		t.Error("ID should be assigned")
	}
	if sub.MonthlyPrice != 15.49 || sub.AnnualPrice != 185.88 {
		t.Errorf("prices = %v/%v, want 15.49/185.88", sub.MonthlyPrice, sub.AnnualPrice)
	}
	if !sub.LastPaymentDate.Equal(core.NewDate(2024, 2, 15)) || !sub.NextPaymentDate.Equal(core.NewDate(2024, 3, 15)) {
		t.Errorf("schedule = %s -> %s, want 2024-02-15 -> 2024-03-15", sub.LastPaymentDate, sub.NextPaymentDate)
	}

	persisted, _ := st.LoadAll(ctx)
	if len(persisted) != 1 || persisted[0].ID != sub.ID {
		t.Errorf("persisted = %+v", persisted)
	}
	if got := pub.types(); len(got) != 1 || got[0] != amqp.EventCreated {
		t.Errorf("events = %v, want [created]", got)
	}
}

func TestSubscriptionService_CreatePrependsAndDerivesAnnual(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, _ := svc.Create(ctx, netflixInput())
	in := netflixInput()
	in.Name = "Domain"
	in.Duration = core.Annually
	in.Price = decimal.NewFromInt(24)
	second, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if second.MonthlyPrice != 2 || second.AnnualPrice != 24 {
		t.Errorf("prices = %v/%v, want 2/24", second.MonthlyPrice, second.AnnualPrice)
	}
	snap := svc.Snapshot()
	if len(snap) != 2 || snap[0].ID != second.ID || snap[1].ID != first.ID {
		t.Errorf("order = %v, want newest first", ids(snap))
	}
}

func TestSubscriptionService_CreateRejectsInvalidInput(t *testing.T) {
	svc, st, pub := newTestService(t)
	in := netflixInput()
	in.Name = "  "
	in.Price = decimal.Zero

	_, err := svc.Create(context.Background(), in)

	if !errors.Is(err, core.ErrValidation) || !errors.Is(err, core.ErrEmptyName) || !errors.Is(err, core.ErrInvalidPrice) {
		t.Errorf("err = %v, want validation error naming name and price", err)
	}
	if st.Saves() != 0 || len(pub.types()) != 0 {
		t.Error("invalid input must not be saved or published")
	}
}

func TestSubscriptionService_Update(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, netflixInput())

	t.Run("price change keeps schedule", func(t *testing.T) {
		in := created.Input()
		in.Price = decimal.NewFromInt(20)
		got, err := svc.Update(ctx, created.ID, in)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.ID != created.ID || got.MonthlyPrice != 20 {
			t.Errorf("got %+v", got)
		}
		if !got.NextPaymentDate.Equal(created.NextPaymentDate) {
			t.Errorf("next = %s, want unchanged %s", got.NextPaymentDate, created.NextPaymentDate)
		}
	})

	t.Run("start date change reschedules", func(t *testing.T) {
		in := created.Input()
		in.StartDate = core.NewDate(2024, 1, 31)
		got, err := svc.Update(ctx, created.ID, in)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !got.LastPaymentDate.Equal(core.NewDate(2024, 2, 29)) || !got.NextPaymentDate.Equal(core.NewDate(2024, 3, 31)) {
			t.Errorf("schedule = %s -> %s, want 2024-02-29 -> 2024-03-31", got.LastPaymentDate, got.NextPaymentDate)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Update(ctx, "missing", netflixInput())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	if got := pub.types(); len(got) != 3 || got[1] != amqp.EventUpdated {
		t.Errorf("events = %v", got)
	}
}

func TestSubscriptionService_Delete(t *testing.T) {
	svc, st, pub := newTestService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, netflixInput())

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if persisted, _ := st.LoadAll(ctx); len(persisted) != 0 {
		t.Errorf("persisted = %+v, want empty", persisted)
	}
	if err := svc.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if got := pub.types(); got[len(got)-1] != amqp.EventDeleted {
		t.Errorf("events = %v", got)
	}
}

func TestSubscriptionService_OpenBackfillsAndReconciles(t *testing.T) {
	legacy := core.Subscription{
		ID: "legacy", Name: "Old", StartDate: core.NewDate(2023, 12, 31),
		Duration: core.Monthly, MonthlyPrice: 5, AnnualPrice: 60, Currency: core.EUR,
	}
	current := core.Subscription{
		ID: "current", Name: "New", StartDate: core.NewDate(2024, 3, 1), Duration: core.Monthly,
		LastPaymentDate: core.NewDate(2024, 3, 1), NextPaymentDate: core.NewDate(2024, 4, 1),
	}

	svc, st, pub := newTestService(t, legacy, current)

	got, _ := svc.Get(context.Background(), "legacy")
	if !got.LastPaymentDate.Equal(core.NewDate(2024, 2, 29)) || !got.NextPaymentDate.Equal(core.NewDate(2024, 3, 31)) {
		t.Errorf("legacy schedule = %s -> %s", got.LastPaymentDate, got.NextPaymentDate)
	}
	if st.Saves() != 1 {
		t.Errorf("saves = %d, want 1", st.Saves())
	}
	if types := pub.types(); len(types) != 1 || types[0] != amqp.EventRenewed {
		t.Errorf("events = %v, want one renewed", types)
	}

	changed, err := svc.Reconcile(context.Background(), serviceNow)
	if err != nil || changed != 0 || st.Saves() != 1 {
		t.Errorf("second reconcile changed=%d saves=%d err=%v, want no-op", changed, st.Saves(), err)
	}
}

func TestSubscriptionService_OpenMalformedStartsEmpty(t *testing.T) {
	svc := NewSubscriptionService(failingStore{loadErr: store.ErrMalformed}, nil, nil)
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := len(svc.Snapshot()); n != 0 {
		t.Errorf("got %d subscriptions, want 0", n)
	}
}

func TestSubscriptionService_OpenPropagatesIOErrors(t *testing.T) {
	svc := NewSubscriptionService(failingStore{loadErr: errors.New("disk gone")}, nil, nil)
	if err := svc.Open(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestSubscriptionService_SaveFailureLeavesStateUntouched(t *testing.T) {
	svc := NewSubscriptionService(failingStore{saveErr: errors.New("read-only")}, nil, nil)
	svc.SetClock(func() time.Time { return serviceNow })
	_ = svc.Open(context.Background())

	if _, err := svc.Create(context.Background(), netflixInput()); err == nil {
		t.Fatal("expected save error")
	}
	if n := len(svc.Snapshot()); n != 0 {
		t.Errorf("collection has %d records after failed save", n)
	}
}

func TestSubscriptionService_PublishFailureIsNotFatal(t *testing.T) {
	svc, _, pub := newTestService(t)
	pub.err = errors.New("broker down")
	if _, err := svc.Create(context.Background(), netflixInput()); err != nil {
		t.Errorf("Create failed because of publisher: %v", err)
	}
}

func TestSubscriptionService_ListAndTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := netflixInput()
	in.Price = decimal.NewFromInt(10)
	_, _ = svc.Create(ctx, in)
	in.Name = "Apple"
	in.Price = decimal.NewFromInt(5)
	_, _ = svc.Create(ctx, in)
	in.Name = "Spotify"
	in.Currency = core.EUR
	in.Price = decimal.NewFromInt(20)
	_, _ = svc.Create(ctx, in)

	list, err := svc.List(ctx, SortPriceAsc, serviceNow)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list[0].Name != "Apple" || list[2].Name != "Spotify" {
		t.Errorf("price order = %v", []string{list[0].Name, list[1].Name, list[2].Name})
	}

	totals, err := svc.Totals(ctx, serviceNow)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	usd := totals.ByCurrency[core.USD]
	if !usd.Monthly.Equal(decimal.NewFromInt(15)) || !usd.Annual.Equal(decimal.NewFromInt(180)) {
		t.Errorf("USD totals = %s/%s, want 15/180", usd.Monthly, usd.Annual)
	}
	// 15 USD / 1.08 + 20 EUR
	if !totals.Base.Monthly.Round(2).Equal(decimal.RequireFromString("33.89")) {
		t.Errorf("base monthly = %s, want 33.89", totals.Base.Monthly.Round(2))
	}
	if totals.Count != 3 || totals.Base.RatesSource != rates.SourceFallback {
		t.Errorf("count/source = %d/%s", totals.Count, totals.Base.RatesSource)
	}
}
