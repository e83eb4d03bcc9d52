// Package sqlite stores expenses as JSON documents in an embedded SQLite file.
// Each row carries the full document plus the columns used for filtering,
// ordering and aggregation. Timestamps are Unix milliseconds, as in BSON,
// which covers every year ParseDate accepts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Gateway = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the database directory, connects, and applies migrations.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func whereClause(f core.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.StartDate != nil {
		conds = append(conds, "date_ms >= ?")
		args = append(args, f.StartDate.UnixMilli())
	}
	if f.EndDate != nil {
		conds = append(conds, "date_ms <= ?")
		args = append(args, f.EndDate.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc FROM expenses"+where+" ORDER BY date_ms DESC, created_ms DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.get(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q querier, id string) (core.Expense, error) {
	var doc string
	err := q.QueryRowContext(ctx, "SELECT doc FROM expenses WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return decode(doc)
}

func (s *Store) Insert(ctx context.Context, f core.Fields) (core.Expense, error) {
	now := s.now().UTC()
	e := core.Expense{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	e.Apply(f, now)

	doc, err := json.Marshal(e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("encode expense: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, date_ms, category, amount_cents, created_ms, updated_ms, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.UnixMilli(), string(e.Category), e.Amount.Cents, e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli(), string(doc))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite", "id", e.ID, "amount_cents", e.Amount.Cents, "category", e.Category)
	return e, nil
}

func (s *Store) Replace(ctx context.Context, id string, f core.Fields) (core.Expense, error) {
	var out core.Expense
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		e.Apply(f, now)
		if now.After(e.CreatedAt) {
			e.UpdatedAt = now
		} else {
			e.UpdatedAt = e.CreatedAt
		}
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE expenses SET date_ms = ?, category = ?, amount_cents = ?, updated_ms = ?, doc = ? WHERE id = ?`,
			e.Date.UnixMilli(), string(e.Category), e.Amount.Cents, e.UpdatedAt.UnixMilli(), string(doc), id); err != nil {
			return fmt.Errorf("update expense %s: %w", id, err)
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Store) Delete(ctx context.Context, id string) (core.Expense, error) {
	var out core.Expense
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete expense %s: %w", id, err)
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses")
	if err != nil {
		return 0, fmt.Errorf("delete all expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Aggregate groups in SQL. Month buckets are derived from the UTC date.
func (s *Store) Aggregate(ctx context.Context, f core.Filter) (core.Stats, error) {
	where, args := whereClause(f)
	var stats core.Stats

	var total, count int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0), COUNT(*) FROM expenses"+where, args...).Scan(&total, &count); err != nil {
		return core.Stats{}, fmt.Errorf("aggregate totals: %w", err)
	}
	stats.Total = core.Totals{
		TotalAmount:   core.Money{Cents: total},
		TotalCount:    count,
		AverageAmount: core.Money{Cents: core.AverageCents(total, count)},
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, SUM(amount_cents), COUNT(*) FROM expenses"+where+" GROUP BY category", args...)
	if err != nil {
		return core.Stats{}, fmt.Errorf("aggregate categories: %w", err)
	}
	for rows.Next() {
		var ct core.CategoryTotal
		var cat string
		if err := rows.Scan(&cat, &ct.TotalAmount.Cents, &ct.Count); err != nil {
			rows.Close()
			return core.Stats{}, fmt.Errorf("scan category total: %w", err)
		}
		ct.Category = core.Category(cat)
		stats.Categories = append(stats.Categories, ct)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return core.Stats{}, fmt.Errorf("iterate category totals: %w", err)
	}

	const monthExpr = "CAST(strftime('%Y', date_ms / 1000.0, 'unixepoch') AS INTEGER), " +
		"CAST(strftime('%m', date_ms / 1000.0, 'unixepoch') AS INTEGER)"
	rows, err = s.db.QueryContext(ctx,
		"SELECT "+monthExpr+", SUM(amount_cents), COUNT(*) FROM expenses"+where+" GROUP BY 1, 2", args...)
	if err != nil {
		return core.Stats{}, fmt.Errorf("aggregate months: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mt core.MonthTotal
		if err := rows.Scan(&mt.Year, &mt.Month, &mt.TotalAmount.Cents, &mt.Count); err != nil {
			return core.Stats{}, fmt.Errorf("scan month total: %w", err)
		}
		stats.Monthly = append(stats.Monthly, mt)
	}
	if err := rows.Err(); err != nil {
		return core.Stats{}, fmt.Errorf("iterate month totals: %w", err)
	}

	stats.Sort()
	return stats, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func decode(doc string) (core.Expense, error) {
	var e core.Expense
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return core.Expense{}, fmt.Errorf("decode expense document: %w", err)
	}
	return e, nil
}
