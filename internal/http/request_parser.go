// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// bounded JSON decoding, input sanitization and conversion of the wire form of
// a subscription into core.SubscriptionInput.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"subtrack/internal/core"
	"subtrack/internal/services"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 64 << 10

// errBadJSON marks bodies that could not be decoded at all.
var errBadJSON = errors.New("invalid JSON body")

// flexString accepts a JSON string or a bare JSON number, keeping the literal
// text so prices like "12,99" and 12.99 go through the same parser.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("price must be a number or a string: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// SubscriptionRequest is the body of create and update requests. Every field
// arrives as text and is converted by ToInput.
type SubscriptionRequest struct {
	Name      string     `json:"name"`
	Bank      string     `json:"bank"`
	Category  string     `json:"category"`
	Payer     string     `json:"payer"`
	Website   string     `json:"website"`
	StartDate string     `json:"startDate"`
	Duration  string     `json:"duration"`
	Price     flexString `json:"price"`
	Currency  string     `json:"currency"`
}

// ToInput converts the request to a core input. Parse failures are collected
// and reported together, wrapped in core.ErrValidation like the core's own
// validation errors.
func (req SubscriptionRequest) ToInput() (core.SubscriptionInput, error) {
	in := core.SubscriptionInput{
		Name:     sanitizeInput(req.Name),
		Bank:     sanitizeInput(req.Bank),
		Category: sanitizeInput(req.Category),
		Payer:    sanitizeInput(req.Payer),
		Website:  sanitizeInput(req.Website),
	}

	var errs []error
	var err error
	if in.StartDate, err = core.ParseDate(req.StartDate); err != nil {
		errs = append(errs, fmt.Errorf("start date: %w", err))
	}
	if in.Duration, err = core.ParseDuration(req.Duration); err != nil {
		errs = append(errs, err)
	}
	if in.Price, err = core.ParsePrice(string(req.Price)); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", err, string(req.Price)))
	}
	if in.Currency, err = core.ParseCurrency(req.Currency); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, core.ErrEmptyName)
	}

	if len(errs) > 0 {
		return core.SubscriptionInput{}, fmt.Errorf("%w: %w", core.ErrValidation, errors.Join(errs...))
	}
	return in, nil
}

// DecodeJSON reads a bounded JSON body into dst. Unknown fields and trailing
// data are rejected. Any failure wraps errBadJSON.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadJSON, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadJSON)
	}
	return nil
}

// ParseSort reads the sort query parameter. A missing parameter selects the
// default order.
func ParseSort(r *http.Request) (services.SortBy, error) {
	return services.ParseSortBy(r.URL.Query().Get("sort"))
}

// validationDetails flattens a validation error into one message per problem.
// The ErrValidation wrapper itself is skipped.
func validationDetails(err error) []string {
	var details []string
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if inner == core.ErrValidation {
					continue
				}
				walk(inner)
			}
			return
		}
		details = append(details, e.Error())
	}
	walk(err)
	return details
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	// Remove control characters except tab, newline, carriage return
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1 // remove character
		}
		return r
	}, s)
	return result
}
