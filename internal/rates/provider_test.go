package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func remoteTable(usd string) Table {
	return Table{
		Base: core.EUR,
		Rates: map[core.Currency]decimal.Decimal{
			core.USD: decimal.RequireFromString(usd),
			core.EUR: decimal.NewFromInt(1),
		},
		Date: "2024-03-01",
	}
}

type memSnapshots struct {
	mu    sync.Mutex
	table Table
	saved int
}

func (m *memSnapshots) LoadRates(ctx context.Context) (Table, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table, !m.table.IsEmpty(), nil
}

func (m *memSnapshots) SaveRates(ctx context.Context, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = t
	m.saved++
	return nil
}

func TestProviderServesCacheWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		calls.Add(1)
		return remoteTable("1.10"), nil
	})
	p := NewProvider(fetcher, WithClock(clock.Now), WithTTL(time.Hour))

	first := p.Get(context.Background())
	clock.Advance(59 * time.Minute)
	second := p.Get(context.Background())

	if calls.Load() != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls.Load())
	}
	if !first.Rates[core.USD].Equal(second.Rates[core.USD]) || first.Date != second.Date {
		t.Errorf("tables differ within TTL: %+v vs %+v", first, second)
	}
	if second.Source != SourceRemote {
		t.Errorf("source = %q, want %q", second.Source, SourceRemote)
	}
}

func TestProviderRefetchesAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		calls.Add(1)
		return remoteTable("1.10"), nil
	})
	p := NewProvider(fetcher, WithClock(clock.Now), WithTTL(time.Hour))

	p.Get(context.Background())
	clock.Advance(time.Hour + time.Second)
	p.Get(context.Background())

	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
}

func TestProviderFallbackWhenNeverFetched(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		return Table{}, errors.New("network down")
	})
	p := NewProvider(fetcher)

	got := p.Get(context.Background())
	want := Fallback()

	if got.Source != SourceFallback {
		t.Errorf("source = %q, want %q", got.Source, SourceFallback)
	}
	if got.Base != core.EUR {
		t.Errorf("base = %q, want EUR", got.Base)
	}
	for c, r := range want.Rates {
		if !got.Rates[c].Equal(r) {
			t.Errorf("rate %s = %s, want %s", c, got.Rates[c], r)
		}
	}
	if _, ok := p.Cached(); ok {
		t.Error("fallback table must not be cached")
	}
}

func TestProviderKeepsStaleTableOnFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	fail := false
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		if fail {
			return Table{}, errors.New("boom")
		}
		return remoteTable("1.12"), nil
	})
	p := NewProvider(fetcher, WithClock(clock.Now))

	p.Get(context.Background())
	fail = true
	clock.Advance(2 * time.Hour)
	got := p.Get(context.Background())

	if got.Source != SourceRemote {
		t.Errorf("source = %q, want stale remote table", got.Source)
	}
	if !got.Rates[core.USD].Equal(decimal.RequireFromString("1.12")) {
		t.Errorf("USD = %s, want 1.12", got.Rates[core.USD])
	}
}

func TestProviderDiscardsOutOfOrderCompletion(t *testing.T) {
	slowEntered := make(chan struct{})
	releaseSlow := make(chan struct{})
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		if calls.Add(1) == 1 {
			close(slowEntered)
			<-releaseSlow
			return remoteTable("9.99"), nil
		}
		return remoteTable("1.20"), nil
	})
	p := NewProvider(fetcher)

	done := make(chan Table)
	go func() { done <- p.Refresh(context.Background()) }()
	<-slowEntered

	newer := p.Refresh(context.Background())
	close(releaseSlow)
	older := <-done

	cached, ok := p.Cached()
	if !ok {
		t.Fatal("cache should be populated")
	}
	want := decimal.RequireFromString("1.20")
	if !cached.Rates[core.USD].Equal(want) {
		t.Errorf("cached USD = %s, want %s from the later-initiated refresh", cached.Rates[core.USD], want)
	}
	if !newer.Rates[core.USD].Equal(want) {
		t.Errorf("newer refresh returned USD = %s, want %s", newer.Rates[core.USD], want)
	}
	if !older.Rates[core.USD].Equal(want) {
		t.Errorf("discarded refresh should return the current cache, got USD = %s", older.Rates[core.USD])
	}
}

func TestProviderCancelledRefreshDoesNotWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		cancel()
		return remoteTable("1.30"), nil
	})
	p := NewProvider(fetcher)

	got := p.Refresh(ctx)

	if _, ok := p.Cached(); ok {
		t.Error("cancelled refresh wrote the cache")
	}
	if got.Source != SourceFallback {
		t.Errorf("source = %q, want fallback", got.Source)
	}
}

func TestProviderConcurrentMissesShareFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		calls.Add(1)
		<-release
		return remoteTable("1.10"), nil
	})
	p := NewProvider(fetcher)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Get(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
}

func TestProviderSnapshots(t *testing.T) {
	snaps := &memSnapshots{}
	ok := FetcherFunc(func(ctx context.Context) (Table, error) {
		return remoteTable("1.15"), nil
	})
	NewProvider(ok, WithSnapshots(snaps)).Refresh(context.Background())
	if snaps.saved != 1 {
		t.Fatalf("snapshots saved = %d, want 1", snaps.saved)
	}

	failing := FetcherFunc(func(ctx context.Context) (Table, error) {
		return Table{}, errors.New("offline")
	})
	p := NewProvider(failing, WithSnapshots(snaps))
	if err := p.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got := p.Get(context.Background())
	if got.Source != SourceSnapshot {
		t.Errorf("source = %q, want %q", got.Source, SourceSnapshot)
	}
	if !got.Rates[core.USD].Equal(decimal.RequireFromString("1.15")) {
		t.Errorf("USD = %s, want 1.15", got.Rates[core.USD])
	}
}

func TestProviderCurrentServesStaleWhileRefreshing(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		if calls.Add(1) == 1 {
			return remoteTable("1.10"), nil
		}
		<-release
		return remoteTable("1.25"), nil
	})
	p := NewProvider(fetcher, WithClock(clock.Now))
	p.Get(context.Background())
	clock.Advance(2 * time.Hour)

	// The request ends before the fetch does; the refresh must still land.
	ctx, cancel := context.WithCancel(context.Background())
	got := p.Current(ctx)
	cancel()

	if !got.Rates[core.USD].Equal(decimal.RequireFromString("1.10")) {
		t.Errorf("Current USD = %s, want the stale 1.10", got.Rates[core.USD])
	}

	close(release)
	want := decimal.RequireFromString("1.25")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cached, _ := p.Cached(); cached.Rates[core.USD].Equal(want) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if cached, _ := p.Cached(); !cached.Rates[core.USD].Equal(want) {
		t.Errorf("background refresh did not update the cache, USD = %s", cached.Rates[core.USD])
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
}

func TestProviderCurrentFallbackWhenEmpty(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fetcher := FetcherFunc(func(ctx context.Context) (Table, error) {
		<-release
		return remoteTable("1.10"), nil
	})
	p := NewProvider(fetcher)

	if got := p.Current(context.Background()); got.Source != SourceFallback {
		t.Errorf("source = %q, want fallback while the first fetch is in flight", got.Source)
	}
}
