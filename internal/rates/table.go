// Package rates provides the exchange-rate table used to normalize amounts to
// the base currency, together with a cached provider that fetches it.
package rates

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
)

// Source records where a table came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
	SourceSnapshot Source = "snapshot"
)

// Table maps currencies to how many units of that currency one unit of the
// base buys. The map may be partial; lookups report a missing rate instead of
// guessing.
type Table struct {
	Base      core.Currency                     `json:"base"`
	Rates     map[core.Currency]decimal.Decimal `json:"rates"`
	Date      string                            `json:"date,omitempty"`
	FetchedAt time.Time                         `json:"fetchedAt,omitzero"`
	Source    Source                            `json:"source"`
}

// Fallback is the fixed table used when no fetch has ever succeeded.
func Fallback() Table {
	return Table{
		Base: core.EUR,
		Rates: map[core.Currency]decimal.Decimal{
			core.USD: decimal.RequireFromString("1.08"),
			core.EUR: decimal.NewFromInt(1),
			core.TRY: decimal.RequireFromString("0.033"),
		},
		Source: SourceFallback,
	}
}

// BaseCurrency returns the table's base, defaulting to core.BaseCurrency.
func (t Table) BaseCurrency() core.Currency {
	if t.Base == "" {
		return core.BaseCurrency
	}
	return t.Base
}

// IsEmpty reports whether the table holds no rates at all.
func (t Table) IsEmpty() bool {
	return len(t.Rates) == 0
}

// Rate returns the rate for c. Zero and negative rates count as missing.
func (t Table) Rate(c core.Currency) (decimal.Decimal, bool) {
	if c == t.BaseCurrency() {
		return decimal.NewFromInt(1), true
	}
	r, ok := t.Rates[c]
	if !ok || !r.IsPositive() {
		return decimal.Zero, false
	}
	return r, true
}

// ToBase converts amount from c into the base currency. When no usable rate
// exists the amount comes back unchanged with ok=false.
func (t Table) ToBase(amount decimal.Decimal, c core.Currency) (decimal.Decimal, bool) {
	if c == t.BaseCurrency() {
		return amount, true
	}
	r, ok := t.Rate(c)
	if !ok {
		return amount, false
	}
	return amount.Div(r), true
}

// ToBaseCurrency is the function form of Table.ToBase.
func ToBaseCurrency(amount decimal.Decimal, c core.Currency, t Table) (decimal.Decimal, bool) {
	return t.ToBase(amount, c)
}

// Clone returns a copy whose rate map can be modified independently.
func (t Table) Clone() Table {
	t.Rates = maps.Clone(t.Rates)
	return t
}
