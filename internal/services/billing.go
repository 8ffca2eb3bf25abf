package services

import (
	"time"

	"subtrack/internal/core"
)

// Today returns the calendar date of now in now's location.
func Today(now time.Time) core.Date {
	return core.DateOf(now)
}

// anchorDay is the day of month payments fall on. The start date wins so that
// a clamped payment (Feb 28) does not drag later months off the 31st.
func anchorDay(s core.Subscription) int {
	if !s.StartDate.IsEmpty() {
		return s.StartDate.Day()
	}
	if !s.LastPaymentDate.IsEmpty() {
		return s.LastPaymentDate.Day()
	}
	return 0
}

// Backfill derives missing schedule dates from the start date:
// last = start, next = start + one period. Records that already carry both
// dates, or that have no start date to derive from, are returned unchanged.
func Backfill(s core.Subscription) (core.Subscription, error) {
	if s.HasSchedule() || s.StartDate.IsEmpty() {
		return s, nil
	}
	cadence, err := GetCadence(s.Duration)
	if err != nil {
		return s, err
	}
	s.LastPaymentDate = s.StartDate
	s.NextPaymentDate = cadence.Advance(s.StartDate, anchorDay(s))
	return s, nil
}

// RollForwardChecked advances the schedule until the next payment date is
// strictly after today. Each step moves the previous next date into last.
// The returned bool reports whether anything changed; s itself is never
// modified. An unsupported duration returns s unchanged with the error.
func RollForwardChecked(s core.Subscription, today core.Date) (core.Subscription, bool, error) {
	out, err := Backfill(s)
	if err != nil {
		return s, false, err
	}
	if !out.HasSchedule() {
		return s, false, nil
	}
	cadence, err := GetCadence(out.Duration)
	if err != nil {
		return s, false, err
	}
	anchor := anchorDay(out)
	for !out.NextPaymentDate.After(today) {
		out.LastPaymentDate = out.NextPaymentDate
		out.NextPaymentDate = cadence.Advance(out.LastPaymentDate, anchor)
	}
	changed := !out.LastPaymentDate.Equal(s.LastPaymentDate) || !out.NextPaymentDate.Equal(s.NextPaymentDate)
	return out, changed, nil
}

// RollForward is RollForwardChecked for callers that only need the result.
// Stale records come back with next payment > today; current records come
// back unchanged.
func RollForward(s core.Subscription, today core.Date) core.Subscription {
	out, _, _ := RollForwardChecked(s, today)
	return out
}

// IsScheduled reports whether s has a next payment date. Records with neither
// a schedule nor a start date to derive one from stay unscheduled.
func IsScheduled(s core.Subscription) bool {
	return !s.NextPaymentDate.IsEmpty()
}

// DaysUntilPayment returns the whole days from today to the next payment.
// Negative means overdue, zero means due today. Unscheduled records report 0;
// callers that present the value check IsScheduled or use Assess.
func DaysUntilPayment(s core.Subscription, today core.Date) int {
	if s.NextPaymentDate.IsEmpty() {
		return 0
	}
	hours := s.NextPaymentDate.Sub(today.Time).Hours()
	return int(hours / 24)
}
