package google

import (
	"fmt"
	"strconv"
	"strings"

	"subtrack/internal/core"
)

var header = []string{
	"ID", "Name", "Bank", "Category", "Payer", "Website", "StartDate",
	"Duration", "MonthlyPrice", "AnnualPrice", "Currency",
	"LastPaymentDate", "NextPaymentDate",
}

const (
	colID = iota
	colName
	colBank
	colCategory
	colPayer
	colWebsite
	colStartDate
	colDuration
	colMonthlyPrice
	colAnnualPrice
	colCurrency
	colLastPayment
	colNextPayment
)

func lastColumn() string {
	return string(rune('A' + len(header) - 1))
}

type skippedRow struct {
	row int
	err error
}

func encodeRows(subs []core.Subscription) [][]any {
	rows := make([][]any, 0, len(subs)+1)
	h := make([]any, len(header))
	for i, v := range header {
		h[i] = v
	}
	rows = append(rows, h)
	for _, s := range subs {
		rows = append(rows, []any{
			s.ID, s.Name, s.Bank, s.Category, s.Payer, s.Website,
			s.StartDate.String(), string(s.Duration),
			s.MonthlyPrice, s.AnnualPrice, string(s.Currency),
			s.LastPaymentDate.String(), s.NextPaymentDate.String(),
		})
	}
	return rows
}

// parseRows converts a values matrix (as returned by Sheets API) into
// subscriptions. The header row is recognized by its first cell and skipped.
// Row numbers in the skipped list are 1-based like the sheet's.
func parseRows(values [][]any) ([]core.Subscription, []skippedRow) {
	subs := make([]core.Subscription, 0, len(values))
	var skipped []skippedRow
	for i, raw := range values {
		row := toStrings(raw)
		if i == 0 && strings.EqualFold(safeGet(row, colID), header[colID]) {
			continue
		}
		if strings.Join(row, "") == "" {
			continue
		}
		s, err := parseRow(row)
		if err != nil {
			skipped = append(skipped, skippedRow{row: i + 1, err: err})
			continue
		}
		subs = append(subs, s)
	}
	return subs, skipped
}

func parseRow(row []string) (core.Subscription, error) {
	s := core.Subscription{
		ID:       safeGet(row, colID),
		Name:     safeGet(row, colName),
		Bank:     safeGet(row, colBank),
		Category: safeGet(row, colCategory),
		Payer:    safeGet(row, colPayer),
		Website:  safeGet(row, colWebsite),
		Duration: core.Duration(safeGet(row, colDuration)),
		Currency: core.Currency(strings.ToUpper(safeGet(row, colCurrency))),
	}
	if s.ID == "" {
		return core.Subscription{}, fmt.Errorf("missing id")
	}

	var err error
	if s.StartDate, err = parseOptionalDate(safeGet(row, colStartDate)); err != nil {
		return core.Subscription{}, err
	}
	if s.LastPaymentDate, err = parseOptionalDate(safeGet(row, colLastPayment)); err != nil {
		return core.Subscription{}, err
	}
	if s.NextPaymentDate, err = parseOptionalDate(safeGet(row, colNextPayment)); err != nil {
		return core.Subscription{}, err
	}
	if s.MonthlyPrice, err = parseAmount(safeGet(row, colMonthlyPrice)); err != nil {
		return core.Subscription{}, fmt.Errorf("monthly price: %w", err)
	}
	if s.AnnualPrice, err = parseAmount(safeGet(row, colAnnualPrice)); err != nil {
		return core.Subscription{}, fmt.Errorf("annual price: %w", err)
	}
	return s, nil
}

func parseOptionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// parseAmount accepts both decimal separators, as sheets in other locales
// render numbers with a comma.
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
