package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Subscription is a row of the subscriptions table.
type Subscription struct {
	ID              string
	Position        int64
	Name            string
	Bank            string
	Category        string
	Payer           string
	Website         string
	StartDate       string
	Duration        string
	MonthlyPrice    float64
	AnnualPrice     float64
	Currency        string
	LastPaymentDate string
	NextPaymentDate string
}

// RateSnapshot is the single row of the rate_snapshots table.
type RateSnapshot struct {
	Base      string
	Rates     string
	RateDate  string
	FetchedAt sql.NullTime
	Source    string
}

const listSubscriptions = `-- name: ListSubscriptions :many
SELECT id, position, name, bank, category, payer, website, start_date, duration,
       monthly_price, annual_price, currency, last_payment_date, next_payment_date
FROM subscriptions
ORDER BY position
`

func (q *Queries) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Subscription
	for rows.Next() {
		var i Subscription
		if err := rows.Scan(
			&i.ID,
			&i.Position,
			&i.Name,
			&i.Bank,
			&i.Category,
			&i.Payer,
			&i.Website,
			&i.StartDate,
			&i.Duration,
			&i.MonthlyPrice,
			&i.AnnualPrice,
			&i.Currency,
			&i.LastPaymentDate,
			&i.NextPaymentDate,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteAllSubscriptions = `-- name: DeleteAllSubscriptions :exec
DELETE FROM subscriptions
`

func (q *Queries) DeleteAllSubscriptions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllSubscriptions)
	return err
}

const insertSubscription = `-- name: InsertSubscription :exec
INSERT INTO subscriptions (
    id, position, name, bank, category, payer, website, start_date, duration,
    monthly_price, annual_price, currency, last_payment_date, next_payment_date
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertSubscription(ctx context.Context, arg Subscription) error {
	_, err := q.db.ExecContext(ctx, insertSubscription,
		arg.ID,
		arg.Position,
		arg.Name,
		arg.Bank,
		arg.Category,
		arg.Payer,
		arg.Website,
		arg.StartDate,
		arg.Duration,
		arg.MonthlyPrice,
		arg.AnnualPrice,
		arg.Currency,
		arg.LastPaymentDate,
		arg.NextPaymentDate,
	)
	return err
}

const getRateSnapshot = `-- name: GetRateSnapshot :one
SELECT base, rates, rate_date, fetched_at, source
FROM rate_snapshots
WHERE id = 1
`

func (q *Queries) GetRateSnapshot(ctx context.Context) (RateSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getRateSnapshot)
	var i RateSnapshot
	err := row.Scan(
		&i.Base,
		&i.Rates,
		&i.RateDate,
		&i.FetchedAt,
		&i.Source,
	)
	return i, err
}

const upsertRateSnapshot = `-- name: UpsertRateSnapshot :exec
INSERT INTO rate_snapshots (id, base, rates, rate_date, fetched_at, source)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    base = excluded.base,
    rates = excluded.rates,
    rate_date = excluded.rate_date,
    fetched_at = excluded.fetched_at,
    source = excluded.source
`

func (q *Queries) UpsertRateSnapshot(ctx context.Context, arg RateSnapshot) error {
	_, err := q.db.ExecContext(ctx, upsertRateSnapshot,
		arg.Base,
		arg.Rates,
		arg.RateDate,
		arg.FetchedAt,
		arg.Source,
	)
	return err
}
