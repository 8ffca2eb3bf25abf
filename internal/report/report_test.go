package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/rates"
	"subtrack/internal/services"
)

func TestPrintSubscriptionsTable(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	subs := []core.Subscription{
		{ID: "1", Name: "Netflix", Category: "Entertainment", Payer: "Personal", Duration: core.Monthly,
			MonthlyPrice: 15.99, AnnualPrice: 191.88, Currency: core.EUR,
			StartDate: core.NewDate(2024, 1, 11), LastPaymentDate: core.NewDate(2024, 2, 11), NextPaymentDate: core.NewDate(2024, 3, 11)},
		{ID: "2", Name: "GitHub", Category: "Software", Payer: "Company", Duration: core.Annually,
			MonthlyPrice: 8.5, AnnualPrice: 102, Currency: core.USD,
			StartDate: core.NewDate(2023, 9, 1), LastPaymentDate: core.NewDate(2023, 9, 1), NextPaymentDate: core.NewDate(2024, 9, 1)},
	}
	totals := services.CurrencyTotals{
		ByCurrency: services.Aggregate(subs),
		Base:       services.AggregateInBase(subs, rates.Fallback()),
		Count:      len(subs),
	}

	var buf bytes.Buffer
	PrintSubscriptionsTable(&buf, subs, totals, Options{Now: now})
	out := buf.String()

	for _, want := range []string{
		"2 subscriptions, 1 due soon",
		"Netflix", "GitHub",
		"Due Tomorrow", "175 days left",
		"Total EUR", "Total USD", "Total in EUR",
		core.FormatAmount(decimal.NewFromInt(102), core.USD),
		"rates: fallback",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colors should be off unless requested")
	}
	if strings.Index(out, "Netflix") > strings.Index(out, "GitHub") {
		t.Error("rows should keep the given order")
	}
}

func TestPrintSubscriptionsTable_Color(t *testing.T) {
	subs := []core.Subscription{{ID: "1", Name: "Late", Duration: core.Monthly, MonthlyPrice: 1, AnnualPrice: 12,
		Currency: core.EUR, StartDate: core.NewDate(2024, 1, 1), NextPaymentDate: core.NewDate(2024, 3, 1), LastPaymentDate: core.NewDate(2024, 2, 1)}}

	var buf bytes.Buffer
	PrintSubscriptionsTable(&buf, subs, services.CurrencyTotals{Count: 1}, Options{Now: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Color: true})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("expected ANSI colors")
	}
	if !strings.Contains(buf.String(), "Overdue") {
		t.Errorf("expected overdue status:\n%s", buf.String())
	}
}

func TestPrintSubscriptionsTable_Unscheduled(t *testing.T) {
	subs := []core.Subscription{{ID: "1", Name: "Undated", Duration: core.Monthly, MonthlyPrice: 1, AnnualPrice: 12, Currency: core.EUR}}

	var buf bytes.Buffer
	PrintSubscriptionsTable(&buf, subs, services.CurrencyTotals{Count: 1}, Options{Now: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)})
	out := buf.String()
	if !strings.Contains(out, services.StatusUnscheduled) {
		t.Errorf("expected unscheduled status:\n%s", out)
	}
	if strings.Contains(out, "Due Today") || !strings.Contains(out, "1 subscriptions, 0 due soon") {
		t.Errorf("undated record counted as due:\n%s", out)
	}
}

func TestSummary(t *testing.T) {
	totals := services.CurrencyTotals{Count: 3}
	totals.Base.Base = core.EUR
	totals.Base.Monthly = decimal.RequireFromString("12.5")
	totals.Base.Annual = decimal.RequireFromString("150")

	want := "3 subscriptions, " + core.FormatAmount(decimal.RequireFromString("12.5"), core.EUR) + "/month, " +
		core.FormatAmount(decimal.NewFromInt(150), core.EUR) + "/year"
	if got := Summary(totals); got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}
