// Package core provides the subscription domain model and money handling.
//
// This file contains the currency set, price parsing and amount formatting.
package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	TRY Currency = "TRY"
)

// BaseCurrency is the reference currency all combined totals are normalized to.
const BaseCurrency = EUR

// Currency is an ISO 4217 code.
type Currency string

var Currencies = []Currency{USD, EUR, TRY}

var currencySymbols = map[Currency]string{
	USD: "$",
	EUR: "€",
	TRY: "₺",
}

func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether c is one of the supported currencies.
func (c Currency) IsValid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display symbol. Codes outside the supported set fall back
// to the narrow symbol known to x/text, then to the code itself.
func (c Currency) Symbol() string {
	if sym, ok := currencySymbols[c]; ok {
		return sym
	}
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return string(c)
	}
	return message.NewPrinter(language.English).Sprint(currency.NarrowSymbol(unit))
}

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}

// ParsePrice converts a decimal string to a positive price.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, thousands separators and zero are rejected.
//
// Examples:
//
//	ParsePrice("12.34") -> 12.34, nil
//	ParsePrice("12,34") -> 12.34, nil
//	ParsePrice("-1")    -> 0, ErrInvalidPrice
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidPrice
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidPrice
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidPrice
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

// FormatAmount renders amount with two fraction digits and the currency symbol
// in front, e.g. "$1,234.50".
func FormatAmount(amount decimal.Decimal, c Currency) string {
	p := message.NewPrinter(language.English)
	v := amount.Round(2).InexactFloat64()
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + c.Symbol() + p.Sprint(number.Decimal(v, number.Scale(2)))
}
