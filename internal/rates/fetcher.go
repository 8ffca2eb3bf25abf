package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"

	"subtrack/internal/core"
)

// DefaultURL returns EUR-based rates.
const DefaultURL = "https://api.exchangerate-api.com/v4/latest/EUR"

const maxPayloadBytes = 1 << 20

var (
	ErrBadStatus    = errors.New("unexpected status from rates endpoint")
	ErrBadPayload   = errors.New("malformed rates payload")
	ErrEmptyPayload = errors.New("rates payload has no rates")
)

// Fetcher retrieves a fresh table.
type Fetcher interface {
	Fetch(ctx context.Context) (Table, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (Table, error)

func (f FetcherFunc) Fetch(ctx context.Context) (Table, error) {
	return f(ctx)
}

const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["rates"],
  "properties": {
    "base": {"type": "string"},
    "date": {"type": "string"},
    "rates": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    }
  }
}`

type payload struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// HTTPFetcher reads a table from an exchangerate-api style endpoint.
type HTTPFetcher struct {
	url    string
	client *http.Client
	schema *gojsonschema.Schema
}

// NewHTTPFetcher creates a fetcher for url. A zero timeout means 10s.
func NewHTTPFetcher(url string, timeout time.Duration) (*HTTPFetcher, error) {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(payloadSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile rates schema: %w", err)
	}
	return &HTTPFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		schema: schema,
	}, nil
}

// Fetch performs one GET. Transport errors, non-2xx responses, payloads that
// fail the schema and payloads without rates are all errors.
func (f *HTTPFetcher) Fetch(ctx context.Context) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Table{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Table{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return Table{}, fmt.Errorf("failed to read rates body: %w", err)
	}
	return f.decode(body)
}

func (f *HTTPFetcher) decode(body []byte) (Table, error) {
	res, err := f.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return Table{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if !res.Valid() {
		details := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			details = append(details, e.String())
		}
		return Table{}, fmt.Errorf("%w: %s", ErrBadPayload, strings.Join(details, "; "))
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Table{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if len(p.Rates) == 0 {
		return Table{}, ErrEmptyPayload
	}

	t := Table{
		Base:   core.Currency(strings.ToUpper(p.Base)),
		Rates:  make(map[core.Currency]decimal.Decimal, len(p.Rates)),
		Date:   p.Date,
		Source: SourceRemote,
	}
	for code, r := range p.Rates {
		t.Rates[core.Currency(strings.ToUpper(code))] = r
	}
	return t, nil
}
