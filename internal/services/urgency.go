package services

import (
	"strconv"

	"subtrack/internal/core"
)

// Band is an ordered urgency level, from least to most pressing.
type Band int

const (
	BandNormal Band = iota
	BandSoon
	BandUrgent
	BandCritical
	BandOverdue
)

var bandNames = [...]string{"normal", "soon", "urgent", "critical", "overdue"}

func (b Band) String() string {
	if b < BandNormal || b > BandOverdue {
		return "unknown"
	}
	return bandNames[b]
}

func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Tone is the display color paired with a band.
type Tone string

const (
	ToneBlue   Tone = "blue"
	ToneGreen  Tone = "green"
	ToneOrange Tone = "orange"
	ToneRed    Tone = "red"
	ToneSlate  Tone = "slate"
	ToneGray   Tone = "gray"
)

// StatusUnscheduled labels records without a next payment date.
const StatusUnscheduled = "Unscheduled"

var bandTones = map[Band]Tone{
	BandNormal:   ToneBlue,
	BandSoon:     ToneGreen,
	BandUrgent:   ToneOrange,
	BandCritical: ToneRed,
	BandOverdue:  ToneSlate,
}

type Urgency struct {
	Band     Band    `json:"band"`
	Tone     Tone    `json:"tone"`
	Progress float64 `json:"progress"`
}

// threshold is the lowest day count that still belongs to band.
type threshold struct {
	minDays int
	band    Band
}

// Checked top to bottom; anything below the last entry is overdue.
var urgencyTables = map[core.Duration][]threshold{
	core.Monthly: {
		{15, BandNormal},
		{10, BandSoon},
		{3, BandUrgent},
		{0, BandCritical},
	},
	core.Annually: {
		{31, BandNormal},
		{15, BandSoon},
		{5, BandUrgent},
		{0, BandCritical},
	},
}

// ClassifyUrgency maps days until payment to a band, tone and progress
// fraction. Large positive counts saturate to normal, negative ones to overdue.
// Unknown durations use the monthly table.
func ClassifyUrgency(days int, d core.Duration) Urgency {
	table, ok := urgencyTables[d]
	if !ok {
		table = urgencyTables[core.Monthly]
	}
	band := BandOverdue
	for _, th := range table {
		if days >= th.minDays {
			band = th.band
			break
		}
	}
	return Urgency{
		Band:     band,
		Tone:     bandTones[band],
		Progress: Progress(days, d),
	}
}

// Progress is the fraction of the period already elapsed, for a rough visual
// indicator: 0 with a full period to go, 1 when due or overdue.
func Progress(days int, d core.Duration) float64 {
	maxDays := 31
	if c, err := GetCadence(d); err == nil {
		maxDays = c.MaxDays()
	}
	p := float64(maxDays-days) / float64(maxDays)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// StatusText is the short label shown next to the progress indicator.
func StatusText(days int) string {
	switch {
	case days < 0:
		return "Overdue"
	case days == 0:
		return "Due Today"
	case days == 1:
		return "Due Tomorrow"
	default:
		return strconv.Itoa(days) + " days left"
	}
}

// DueSoon reports whether the payment is close enough to flag.
func DueSoon(days int) bool {
	return days <= 2
}

// Assessment is everything derived from a subscription's next payment date.
type Assessment struct {
	Scheduled bool
	Days      int
	Urgency   Urgency
	Status    string
	DueSoon   bool
}

// Assess classifies s as of today. Unscheduled records are never due soon and
// sit in the normal band with a gray tone.
func Assess(s core.Subscription, today core.Date) Assessment {
	if !IsScheduled(s) {
		return Assessment{
			Urgency: Urgency{Band: BandNormal, Tone: ToneGray},
			Status:  StatusUnscheduled,
		}
	}
	days := DaysUntilPayment(s, today)
	return Assessment{
		Scheduled: true,
		Days:      days,
		Urgency:   ClassifyUrgency(days, s.Duration),
		Status:    StatusText(days),
		DueSoon:   DueSoon(days),
	}
}
