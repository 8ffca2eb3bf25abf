// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for billing cadences. Each
// duration (monthly, annually) has its own strategy that knows how to move a
// payment date forward by one period.

package services

import (
	"fmt"
	"subtrack/internal/core"
	"sync"
)

// Cadence is the strategy interface for advancing a payment date by one billing period.
type Cadence interface {
	// Advance returns the payment date one period after from. anchorDay is the
	// preferred day of month, used when from sits on it; when the target month
	// is shorter the result is clamped to its last day.
	Advance(from core.Date, anchorDay int) core.Date

	// MaxDays is the period length used for the progress indicator.
	MaxDays() int
}

// MonthlyCadence implements Cadence for monthly subscriptions.
type MonthlyCadence struct{}

// Advance moves to the next month, clamping Jan 31 to Feb 28/29.
func (MonthlyCadence) Advance(from core.Date, anchorDay int) core.Date {
	return addMonthsClamped(from, 1, anchorDay)
}

func (MonthlyCadence) MaxDays() int { return 31 }

// AnnualCadence implements Cadence for annual subscriptions.
type AnnualCadence struct{}

// Advance moves to the same month next year, clamping Feb 29 to Feb 28.
func (AnnualCadence) Advance(from core.Date, anchorDay int) core.Date {
	return addMonthsClamped(from, 12, anchorDay)
}

func (AnnualCadence) MaxDays() int { return 365 }

// addMonthsClamped never overflows into the following month the way
// time.AddDate does (Jan 31 + 1 month = Mar 2/3). The anchor only applies
// when from is on it, or on its clamped month end; a date that drifted off
// the anchor keeps its own day so the result stays one period after from.
func addMonthsClamped(from core.Date, months, anchorDay int) core.Date {
	day := from.Day()
	if anchorDay > 0 && (day == anchorDay || day == min(anchorDay, from.DaysInMonth())) {
		day = anchorDay
	}
	// Day 1 cannot overflow, so the month arithmetic is exact.
	first := core.NewDate(from.Year(), from.Month()+months, 1)
	if last := first.DaysInMonth(); day > last {
		day = last
	}
	return core.NewDate(first.Year(), first.Month(), day)
}

var (
	cadencesMu sync.RWMutex
	// cadences maps durations to their strategies.
	cadences = map[core.Duration]Cadence{
		core.Monthly:  MonthlyCadence{},
		core.Annually: AnnualCadence{},
	}
)

// GetCadence returns the cadence strategy for a duration.
// Returns an error if the duration is not supported.
func GetCadence(d core.Duration) (Cadence, error) {
	cadencesMu.RLock()
	defer cadencesMu.RUnlock()
	c, ok := cadences[d]
	if !ok {
		return nil, fmt.Errorf("%w: unknown cadence %q", core.ErrInvalidDuration, d)
	}
	return c, nil
}

// RegisterCadence registers a strategy for an additional duration.
func RegisterCadence(d core.Duration, c Cadence) {
	cadencesMu.Lock()
	defer cadencesMu.Unlock()
	cadences[d] = c
}
