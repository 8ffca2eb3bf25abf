// Package report renders the subscription list and its totals as a terminal
// table.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/services"
)

// Options controls how the report is drawn.
type Options struct {
	// Color enables ANSI colors for urgency and totals.
	Color bool
	Now   time.Time
}

var toneColors = map[services.Tone]text.Colors{
	services.ToneBlue:   {text.FgBlue},
	services.ToneGreen:  {text.FgGreen},
	services.ToneOrange: {text.FgYellow},
	services.ToneRed:    {text.FgRed, text.Bold},
	services.ToneSlate:  {text.FgHiBlack},
	services.ToneGray:   {text.Faint},
}

// PrintSubscriptionsTable writes subs, already in display order, followed by
// per-currency totals and the total in the base currency.
func PrintSubscriptionsTable(w io.Writer, subs []core.Subscription, totals services.CurrencyTotals, opts Options) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	today := services.Today(opts.Now)
	paint := func(c text.Colors, s string) string {
		if !opts.Color || len(c) == 0 {
			return s
		}
		return c.Sprint(s)
	}

	fmt.Fprintf(w, "%d subscriptions, %d due soon\n\n", len(subs), countDueSoon(subs, today))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := table.Row{"Name", "Category", "Payer", "Cycle", "Price", "Monthly", "Annual", "Next Payment", "Status"}
	t.AppendHeader(header)

	for _, s := range subs {
		a := services.Assess(s, today)
		in := s.Input()
		t.AppendRow(table.Row{
			s.Name,
			s.Category,
			s.Payer,
			string(s.Duration),
			core.FormatAmount(in.Price, s.Currency),
			core.FormatAmount(decimal.NewFromFloat(s.MonthlyPrice), s.Currency),
			core.FormatAmount(decimal.NewFromFloat(s.AnnualPrice), s.Currency),
			s.NextPaymentDate.String(),
			paint(toneColors[a.Urgency.Tone], a.Status),
		})
	}

	t.AppendSeparator()
	for _, c := range slices.Sorted(maps.Keys(totals.ByCurrency)) {
		sum := totals.ByCurrency[c]
		t.AppendFooter(table.Row{"", "", "", "", "Total " + string(c),
			core.FormatAmount(sum.Monthly, c), core.FormatAmount(sum.Annual, c), "", ""})
	}
	base := totals.Base
	label := "Total in " + string(base.Base)
	if len(base.MissingRates) > 0 {
		label += " (unconverted: " + joinCurrencies(base.MissingRates) + ")"
	}
	t.AppendFooter(table.Row{"", "", "", "", paint(text.Colors{text.Bold}, label),
		paint(text.Colors{text.Bold}, core.FormatAmount(base.Monthly, base.Base)),
		paint(text.Colors{text.Bold}, core.FormatAmount(base.Annual, base.Base)),
		"", "rates: " + ratesLabel(base)})

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
}

func countDueSoon(subs []core.Subscription, today core.Date) int {
	n := 0
	for _, s := range subs {
		if services.Assess(s, today).DueSoon {
			n++
		}
	}
	return n
}

func joinCurrencies(cs []core.Currency) string {
	out := ""
	for i, c := range cs {
		if i > 0 {
			out += ", "
		}
		out += string(c)
	}
	return out
}

func ratesLabel(b services.BaseTotals) string {
	if b.RatesDate == "" {
		return string(b.RatesSource)
	}
	return string(b.RatesSource) + " " + b.RatesDate
}

// Summary is a one-line text form of the base totals, used in logs.
func Summary(totals services.CurrencyTotals) string {
	b := totals.Base
	return strconv.Itoa(totals.Count) + " subscriptions, " +
		core.FormatAmount(b.Monthly, b.Base) + "/month, " +
		core.FormatAmount(b.Annual, b.Base) + "/year"
}
