package services

import (
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/rates"
)

// Totals is what a group of subscriptions costs per month and per year.
type Totals struct {
	Monthly decimal.Decimal `json:"monthly"`
	Annual  decimal.Decimal `json:"annual"`
}

func (t Totals) add(monthly, annual decimal.Decimal) Totals {
	return Totals{Monthly: t.Monthly.Add(monthly), Annual: t.Annual.Add(annual)}
}

// BaseTotals is the whole collection normalized to one currency.
type BaseTotals struct {
	Base core.Currency `json:"base"`
	Totals
	RatesSource rates.Source `json:"ratesSource"`
	RatesDate   string       `json:"ratesDate,omitempty"`
	// MissingRates lists currencies that had no usable rate and were summed unconverted.
	MissingRates []core.Currency `json:"missingRates,omitempty"`
}

// Aggregate groups by currency and sums monthly and annual prices independently.
// Amounts in different currencies are never combined.
func Aggregate(subs []core.Subscription) map[core.Currency]Totals {
	out := make(map[core.Currency]Totals)
	for _, s := range subs {
		out[s.Currency] = out[s.Currency].add(
			decimal.NewFromFloat(s.MonthlyPrice),
			decimal.NewFromFloat(s.AnnualPrice),
		)
	}
	return out
}

// AggregateInBase converts every price to the table's base currency and sums
// across the whole collection.
func AggregateInBase(subs []core.Subscription, table rates.Table) BaseTotals {
	out := BaseTotals{
		Base:        table.BaseCurrency(),
		RatesSource: table.Source,
		RatesDate:   table.Date,
	}
	for _, s := range subs {
		monthly, okM := table.ToBase(decimal.NewFromFloat(s.MonthlyPrice), s.Currency)
		annual, okA := table.ToBase(decimal.NewFromFloat(s.AnnualPrice), s.Currency)
		if (!okM || !okA) && !slices.Contains(out.MissingRates, s.Currency) {
			slog.Warn("Exchange rate not found, amount left unconverted",
				"currency", s.Currency,
				"base", out.Base,
				"subscription_id", s.ID)
			out.MissingRates = append(out.MissingRates, s.Currency)
		}
		out.Totals = out.Totals.add(monthly, annual)
	}
	return out
}
