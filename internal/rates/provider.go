package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched table is served without refetching.
const DefaultTTL = time.Hour

// SnapshotStore persists the last good table across restarts.
type SnapshotStore interface {
	LoadRates(ctx context.Context) (Table, bool, error)
	SaveRates(ctx context.Context, t Table) error
}

// Option configures a Provider.
type Option func(*Provider)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSnapshots enables persisting each successful fetch.
func WithSnapshots(s SnapshotStore) Option {
	return func(p *Provider) {
		p.snapshots = s
	}
}

// Provider caches the rate table for a freshness window and falls back to a
// stale or fixed table when the fetcher fails.
//
// Each refresh takes a sequence number when it starts. A completed refresh
// only replaces the cache if no later-started refresh has already done so,
// which keeps a slow, older response from overwriting a newer one.
type Provider struct {
	fetcher   Fetcher
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	snapshots SnapshotStore

	mu         sync.Mutex
	table      Table
	populated  bool
	fetchedAt  time.Time
	nextSeq    uint64
	appliedSeq uint64

	group singleflight.Group
}

// NewProvider creates a provider around fetcher.
func NewProvider(fetcher Fetcher, opts ...Option) *Provider {
	p := &Provider{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "rates")
	return p
}

// Get returns the cached table while it is fresh, otherwise refreshes.
// Concurrent misses share a single fetch.
func (p *Provider) Get(ctx context.Context) Table {
	if t, ok := p.fresh(); ok {
		return t
	}
	v, _, _ := p.group.Do("refresh", func() (any, error) {
		if t, ok := p.fresh(); ok {
			return t, nil
		}
		return p.Refresh(ctx), nil
	})
	return v.(Table).Clone()
}

// Current returns the best table available without waiting on the network:
// the cache, fresh or stale, else the fallback table. When the cache is not
// fresh a refresh starts in the background, shared with any concurrent Get.
func (p *Provider) Current(ctx context.Context) Table {
	if t, ok := p.fresh(); ok {
		return t
	}
	bg := context.WithoutCancel(ctx)
	p.group.DoChan("refresh", func() (any, error) {
		if t, ok := p.fresh(); ok {
			return t, nil
		}
		return p.Refresh(bg), nil
	})
	if t, ok := p.Cached(); ok {
		return t
	}
	return Fallback()
}

// Cached returns the current cache contents without fetching.
func (p *Provider) Cached() (Table, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.populated {
		return Table{}, false
	}
	return p.table.Clone(), true
}

func (p *Provider) fresh() (Table, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.populated || p.fetchedAt.IsZero() {
		return Table{}, false
	}
	if p.now().Sub(p.fetchedAt) >= p.ttl {
		return Table{}, false
	}
	return p.table.Clone(), true
}

// Refresh fetches unconditionally. It never fails: on error it returns the
// stale cache if there is one, else the fallback table.
func (p *Provider) Refresh(ctx context.Context) Table {
	p.mu.Lock()
	p.nextSeq++
	seq := p.nextSeq
	p.mu.Unlock()

	t, err := p.fetcher.Fetch(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && t.IsEmpty() {
		err = ErrEmptyPayload
	}

	p.mu.Lock()
	if err != nil {
		defer p.mu.Unlock()
		if p.populated {
			p.logger.WarnContext(ctx, "Rates fetch failed, keeping cached table",
				"error", err,
				"source", p.table.Source)
			return p.table.Clone()
		}
		p.logger.WarnContext(ctx, "Rates fetch failed, using fallback table", "error", err)
		return Fallback()
	}

	if seq <= p.appliedSeq {
		defer p.mu.Unlock()
		p.logger.DebugContext(ctx, "Discarding out-of-order rates response",
			"seq", seq,
			"applied_seq", p.appliedSeq)
		return p.table.Clone()
	}

	if t.Base == "" {
		t.Base = Fallback().Base
	}
	t.Source = SourceRemote
	t.FetchedAt = p.now()
	p.table = t.Clone()
	p.populated = true
	p.fetchedAt = t.FetchedAt
	p.appliedSeq = seq
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Exchange rates refreshed",
		"base", t.Base,
		"date", t.Date,
		"count", len(t.Rates))

	if p.snapshots != nil {
		if err := p.snapshots.SaveRates(ctx, t); err != nil {
			p.logger.WarnContext(ctx, "Failed to save rates snapshot", "error", err)
		}
	}
	return t
}

// Restore seeds an empty cache from the last saved snapshot. The restored
// table is served as stale, so the next Get still tries the network.
func (p *Provider) Restore(ctx context.Context) error {
	if p.snapshots == nil {
		return nil
	}
	t, ok, err := p.snapshots.LoadRates(ctx)
	if err != nil || !ok || t.IsEmpty() {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.populated {
		return nil
	}
	t.Source = SourceSnapshot
	p.table = t
	p.populated = true
	p.fetchedAt = time.Time{}
	p.logger.InfoContext(ctx, "Restored exchange rates from snapshot",
		"date", t.Date,
		"fetched_at", t.FetchedAt)
	return nil
}
