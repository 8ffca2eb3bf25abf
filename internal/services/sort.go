package services

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"subtrack/internal/core"
)

// SortBy is a list ordering criterion.
type SortBy string

const (
	SortNameAsc     SortBy = "name-asc"
	SortNameDesc    SortBy = "name-desc"
	SortPriceAsc    SortBy = "price-asc"
	SortPriceDesc   SortBy = "price-desc"
	SortDateAsc     SortBy = "date-asc"
	SortDateDesc    SortBy = "date-desc"
	SortUrgencyAsc  SortBy = "urgency-asc"
	SortUrgencyDesc SortBy = "urgency-desc"

	DefaultSort = SortNameAsc
)

var SortOptions = []SortBy{
	SortNameAsc, SortNameDesc,
	SortPriceAsc, SortPriceDesc,
	SortDateAsc, SortDateDesc,
	SortUrgencyAsc, SortUrgencyDesc,
}

// ParseSortBy validates a criterion. The empty string selects DefaultSort.
func ParseSortBy(s string) (SortBy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultSort, nil
	}
	if by := SortBy(s); slices.Contains(SortOptions, by) {
		return by, nil
	}
	return "", fmt.Errorf("unknown sort criterion %q", s)
}

// Sort returns a new slice ordered by the criterion; subs is not modified.
// The sort is stable in both directions, so ties keep their input order.
// Urgency is measured against now, so the order can change as time passes.
func Sort(subs []core.Subscription, by SortBy, now time.Time) []core.Subscription {
	out := slices.Clone(subs)
	slices.SortStableFunc(out, comparator(by, Today(now)))
	return out
}

func comparator(by SortBy, today core.Date) func(a, b core.Subscription) int {
	switch by {
	case SortNameDesc:
		return descending(byName())
	case SortPriceAsc:
		return byPrice
	case SortPriceDesc:
		return descending(byPrice)
	case SortDateAsc:
		return byStartDate
	case SortDateDesc:
		return descending(byStartDate)
	case SortUrgencyAsc:
		return byUrgency(today, false)
	case SortUrgencyDesc:
		return byUrgency(today, true)
	default:
		return byName()
	}
}

func descending(f func(a, b core.Subscription) int) func(a, b core.Subscription) int {
	return func(a, b core.Subscription) int { return f(b, a) }
}

// byName compares with a case-insensitive collator. A collator is not safe for
// concurrent use, so each sort gets its own.
func byName() func(a, b core.Subscription) int {
	c := collate.New(language.English, collate.IgnoreCase)
	return func(a, b core.Subscription) int {
		return c.CompareString(a.Name, b.Name)
	}
}

func byPrice(a, b core.Subscription) int {
	return cmp.Compare(a.MonthlyPrice, b.MonthlyPrice)
}

func byStartDate(a, b core.Subscription) int {
	return a.StartDate.Compare(b.StartDate.Time)
}

// byUrgency orders by days until payment, soonest first unless desc.
// Unscheduled records sort last in both directions.
func byUrgency(today core.Date, desc bool) func(a, b core.Subscription) int {
	return func(a, b core.Subscription) int {
		as, bs := IsScheduled(a), IsScheduled(b)
		switch {
		case as && !bs:
			return -1
		case !as && bs:
			return 1
		case !as:
			return 0
		}
		c := cmp.Compare(DaysUntilPayment(a, today), DaysUntilPayment(b, today))
		if desc {
			return -c
		}
		return c
	}
}
