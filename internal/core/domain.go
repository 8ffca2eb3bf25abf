package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly  Duration = "Monthly"
	Annually Duration = "Annually"
)

const dateLayout = "2006-01-02"

type (
	// Duration is the billing cadence of a subscription.
	Duration string

	// Date is a calendar date without time of day, always stored at midnight UTC.
	Date struct {
		time.Time
	}

	Subscription struct {
		ID              string   `json:"id"`
		Name            string   `json:"name"`
		Bank            string   `json:"bank"`
		Category        string   `json:"category"`
		Payer           string   `json:"payer"`
		Website         string   `json:"website"`
		StartDate       Date     `json:"startDate"`
		Duration        Duration `json:"duration"`
		MonthlyPrice    float64  `json:"monthlyPrice"`
		AnnualPrice     float64  `json:"annualPrice"`
		Currency        Currency `json:"currency"`
		LastPaymentDate Date     `json:"lastPaymentDate,omitzero"`
		NextPaymentDate Date     `json:"nextPaymentDate,omitzero"`
	}

	// SubscriptionInput is what the UI boundary hands over on create and edit.
	// Price is read as monthly or annual depending on Duration.
	SubscriptionInput struct {
		Name      string          `json:"name"`
		Bank      string          `json:"bank"`
		Category  string          `json:"category"`
		Payer     string          `json:"payer"`
		Website   string          `json:"website"`
		StartDate Date            `json:"startDate"`
		Duration  Duration        `json:"duration"`
		Price     decimal.Decimal `json:"price"`
		Currency  Currency        `json:"currency"`
	}
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidDate     = errors.New("invalid date")
)

var (
	Categories = []string{"Entertainment", "Software", "Work", "Utilities", "Health", "Finance", "Shopping", "Other"}
	Payers     = []string{"Personal", "Partner", "Shared", "Company"}
	Durations  = []Duration{Monthly, Annually}
)

// NewDate creates a new Date from year, month, day. Out of range values
// normalize the way time.Date does.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// IsEmpty returns true if the date is zero (legacy records without schedule dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Month returns the month as an int
func (d Date) Month() int {
	return int(d.Time.Month())
}

// DaysInMonth returns the number of days in the date's month.
func (d Date) DaysInMonth() int {
	return DaysIn(d.Year(), d.Month())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Equal reports whether both dates fall on the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD", full RFC 3339 timestamps (the time part
// is dropped), empty strings and null. The last two leave the date empty.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) > len(dateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			*d = DateOf(t.UTC())
			return nil
		}
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (du Duration) IsValid() bool {
	switch du {
	case Monthly, Annually:
		return true
	default:
		return false
	}
}

// ParseDuration accepts the canonical names case-insensitively, plus the
// "month"/"year" spellings used by older clients.
func ParseDuration(s string) (Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return Monthly, nil
	case "annually", "annual", "yearly", "year":
		return Annually, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
}

// IsKnownCategory reports whether c belongs to the fixed category option set.
func IsKnownCategory(c string) bool {
	return contains(Categories, c)
}

// IsKnownPayer reports whether p belongs to the fixed payer option set.
func IsKnownPayer(p string) bool {
	return contains(Payers, p)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Validate checks the input at the boundary. All problems are reported
// together, each wrapping its sentinel.
func (in SubscriptionInput) Validate() error {
	var errs []error
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, ErrEmptyName)
	}
	if len(in.Name) > 200 {
		errs = append(errs, fmt.Errorf("%w: name too long (max 200 characters)", ErrValidation))
	}
	if !in.Price.IsPositive() {
		errs = append(errs, fmt.Errorf("%w: price must be greater than zero", ErrInvalidPrice))
	}
	if !in.Duration.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidDuration, in.Duration))
	}
	if !in.Currency.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidCurrency, in.Currency))
	}
	if err := in.StartDate.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("start date: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
}

// Prices derives the monthly and annual views from the authoritative input price.
func (in SubscriptionInput) Prices() (monthly, annual decimal.Decimal) {
	twelve := decimal.NewFromInt(12)
	if in.Duration == Annually {
		return in.Price.Div(twelve), in.Price
	}
	return in.Price, in.Price.Mul(twelve)
}

// Apply copies the editable fields of the input onto s, deriving both price views.
// Identity and schedule dates are left alone.
func (in SubscriptionInput) Apply(s Subscription) Subscription {
	monthly, annual := in.Prices()
	s.Name = strings.TrimSpace(in.Name)
	s.Bank = strings.TrimSpace(in.Bank)
	s.Category = in.Category
	s.Payer = in.Payer
	s.Website = strings.TrimSpace(in.Website)
	s.StartDate = in.StartDate
	s.Duration = in.Duration
	s.MonthlyPrice = monthly.InexactFloat64()
	s.AnnualPrice = annual.InexactFloat64()
	s.Currency = in.Currency
	return s
}

// Input returns the editable view of s, with the price taken from the
// authoritative field for its duration.
func (s Subscription) Input() SubscriptionInput {
	price := decimal.NewFromFloat(s.MonthlyPrice)
	if s.Duration == Annually {
		price = decimal.NewFromFloat(s.AnnualPrice)
	}
	return SubscriptionInput{
		Name:      s.Name,
		Bank:      s.Bank,
		Category:  s.Category,
		Payer:     s.Payer,
		Website:   s.Website,
		StartDate: s.StartDate,
		Duration:  s.Duration,
		Price:     price,
		Currency:  s.Currency,
	}
}

// HasSchedule reports whether both schedule dates are present.
func (s Subscription) HasSchedule() bool {
	return !s.LastPaymentDate.IsEmpty() && !s.NextPaymentDate.IsEmpty()
}
