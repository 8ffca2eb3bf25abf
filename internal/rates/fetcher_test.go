package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
)

func newTestFetcher(t *testing.T, status int, body string) *HTTPFetcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	f, err := NewHTTPFetcher(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	return f
}

func TestHTTPFetcherDecodes(t *testing.T) {
	f := newTestFetcher(t, http.StatusOK,
		`{"base":"EUR","date":"2024-03-01","time_last_updated":1709251201,"rates":{"EUR":1,"USD":1.0842,"try":34.9}}`)

	got, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Base != core.EUR || got.Date != "2024-03-01" {
		t.Errorf("base/date = %q/%q", got.Base, got.Date)
	}
	if !got.Rates[core.USD].Equal(decimal.RequireFromString("1.0842")) {
		t.Errorf("USD = %s", got.Rates[core.USD])
	}
	if !got.Rates[core.TRY].Equal(decimal.RequireFromString("34.9")) {
		t.Errorf("TRY = %s, codes should be upper-cased", got.Rates[core.TRY])
	}
}

func TestHTTPFetcherFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, ErrBadStatus},
		{"not json", http.StatusOK, `<html>`, ErrBadPayload},
		{"missing rates", http.StatusOK, `{"base":"EUR"}`, ErrBadPayload},
		{"rate not a number", http.StatusOK, `{"rates":{"USD":"abc"}}`, ErrBadPayload},
		{"empty rates", http.StatusOK, `{"base":"EUR","rates":{}}`, ErrEmptyPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, tt.status, tt.body)
			_, err := f.Fetch(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPFetcherHonoursContext(t *testing.T) {
	f := newTestFetcher(t, http.StatusOK, `{"rates":{"USD":1.1}}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
