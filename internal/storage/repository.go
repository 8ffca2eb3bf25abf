package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/rates"
	"subtrack/internal/store"

	_ "modernc.org/sqlite"
)

var (
	_ store.Store         = (*SQLiteRepository)(nil)
	_ rates.SnapshotStore = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "db_path", dbPath, "schema_version", version)

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used by the readiness check.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadAll implements store.Loader. Rows whose dates cannot be parsed are
// skipped with a warning.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.Subscription, error) {
	rows, err := r.queries.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]core.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := fromRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable subscription row",
				"id", row.ID,
				"error", err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// SaveAll implements store.Saver. The table is rewritten in one transaction
// so readers never observe a partial collection.
func (r *SQLiteRepository) SaveAll(ctx context.Context, subs []core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteAllSubscriptions(ctx); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	for i, sub := range subs {
		if err := q.InsertSubscription(ctx, toRow(sub, i)); err != nil {
			return fmt.Errorf("insert subscription %s: %w", sub.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscriptions: %w", err)
	}

	slog.DebugContext(ctx, "Subscriptions saved to SQLite", "count", len(subs))
	return nil
}

// LoadRates implements rates.SnapshotStore.
func (r *SQLiteRepository) LoadRates(ctx context.Context) (rates.Table, bool, error) {
	row, err := r.queries.GetRateSnapshot(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return rates.Table{}, false, nil
	}
	if err != nil {
		return rates.Table{}, false, fmt.Errorf("get rate snapshot: %w", err)
	}

	var raw map[core.Currency]decimal.Decimal
	if err := json.Unmarshal([]byte(row.Rates), &raw); err != nil {
		return rates.Table{}, false, fmt.Errorf("%w: rate snapshot: %w", store.ErrMalformed, err)
	}

	t := rates.Table{
		Base:   core.Currency(row.Base),
		Rates:  raw,
		Date:   row.RateDate,
		Source: rates.Source(row.Source),
	}
	if row.FetchedAt.Valid {
		t.FetchedAt = row.FetchedAt.Time
	}
	slog.DebugContext(ctx, "Rate snapshot loaded",
		"date", t.Date,
		"age", snapshotAge(t, time.Now()))
	return t, true, nil
}

// SaveRates implements rates.SnapshotStore.
func (r *SQLiteRepository) SaveRates(ctx context.Context, t rates.Table) error {
	encoded, err := json.Marshal(t.Rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	err = r.queries.UpsertRateSnapshot(ctx, RateSnapshot{
		Base:      string(t.BaseCurrency()),
		Rates:     string(encoded),
		RateDate:  t.Date,
		FetchedAt: sql.NullTime{Time: t.FetchedAt, Valid: !t.FetchedAt.IsZero()},
		Source:    string(t.Source),
	})
	if err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	slog.DebugContext(ctx, "Rate snapshot saved", "date", t.Date, "source", t.Source)
	return nil
}

func toRow(s core.Subscription, position int) Subscription {
	return Subscription{
		ID:              s.ID,
		Position:        int64(position),
		Name:            s.Name,
		Bank:            s.Bank,
		Category:        s.Category,
		Payer:           s.Payer,
		Website:         s.Website,
		StartDate:       s.StartDate.String(),
		Duration:        string(s.Duration),
		MonthlyPrice:    s.MonthlyPrice,
		AnnualPrice:     s.AnnualPrice,
		Currency:        string(s.Currency),
		LastPaymentDate: s.LastPaymentDate.String(),
		NextPaymentDate: s.NextPaymentDate.String(),
	}
}

func fromRow(row Subscription) (core.Subscription, error) {
	start, err := parseOptionalDate(row.StartDate)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("start date: %w", err)
	}
	last, err := parseOptionalDate(row.LastPaymentDate)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("last payment date: %w", err)
	}
	next, err := parseOptionalDate(row.NextPaymentDate)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("next payment date: %w", err)
	}
	return core.Subscription{
		ID:              row.ID,
		Name:            row.Name,
		Bank:            row.Bank,
		Category:        row.Category,
		Payer:           row.Payer,
		Website:         row.Website,
		StartDate:       start,
		Duration:        core.Duration(row.Duration),
		MonthlyPrice:    row.MonthlyPrice,
		AnnualPrice:     row.AnnualPrice,
		Currency:        core.Currency(row.Currency),
		LastPaymentDate: last,
		NextPaymentDate: next,
	}, nil
}

func parseOptionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// snapshotAge is how old the stored rate table is, for logging.
func snapshotAge(t rates.Table, now time.Time) time.Duration {
	if t.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(t.FetchedAt)
}
