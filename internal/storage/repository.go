package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"financas/internal/core"
	applog "financas/internal/log"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateOccurrence is returned when an insert collides with the
	// unique (recurring_transaction_id, date) index. For the materializer
	// this is an expected outcome, not a failure: the occurrence was
	// already created by an earlier or concurrent pass.
	ErrDuplicateOccurrence = errors.New("occurrence already materialized")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const recurringColumns = `
	id, type, category, payment_method, amount_cents, description, frequency,
	start_date, end_date, day_of_month, day_of_week, active, last_processed,
	created_at, updated_at
`

func scanRecurring(s scanner) (*core.RecurringTransaction, error) {
	var (
		rt            core.RecurringTransaction
		typeStr       string
		categoryStr   string
		paymentMethod sql.NullString
		startDate     string
		endDate       sql.NullString
		dayOfMonth    sql.NullInt64
		dayOfWeek     sql.NullInt64
		active        int64
		lastProcessed sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := s.Scan(
		&rt.ID, &typeStr, &categoryStr, &paymentMethod, &rt.Amount.Cents,
		&rt.Description, (*string)(&rt.Frequency), &startDate, &endDate,
		&dayOfMonth, &dayOfWeek, &active, &lastProcessed,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rt.Type = core.TransactionType(typeStr)
	rt.Category = core.Category(categoryStr)
	if paymentMethod.Valid {
		rt.PaymentMethod = core.PaymentMethod(paymentMethod.String)
	}
	if rt.StartDate, err = core.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if endDate.Valid {
		if rt.EndDate, err = core.ParseDate(endDate.String); err != nil {
			return nil, fmt.Errorf("end_date: %w", err)
		}
	}
	if dayOfMonth.Valid {
		v := int(dayOfMonth.Int64)
		rt.DayOfMonth = &v
	}
	if dayOfWeek.Valid {
		v := int(dayOfWeek.Int64)
		rt.DayOfWeek = &v
	}
	rt.Active = active != 0
	if lastProcessed.Valid {
		if rt.LastProcessed, err = core.ParseDate(lastProcessed.String); err != nil {
			return nil, fmt.Errorf("last_processed: %w", err)
		}
	}
	rt.CreatedAt = parseTimestamp(createdAt)
	rt.UpdatedAt = parseTimestamp(updatedAt)
	return &rt, nil
}

const transactionColumns = `
	id, type, category, payment_method, amount_cents, description, date,
	recurring_transaction_id, created_at
`

func scanTransaction(s scanner) (*core.Transaction, error) {
	var (
		t             core.Transaction
		typeStr       string
		categoryStr   string
		paymentMethod sql.NullString
		date          string
		recurringID   sql.NullString
		createdAt     string
	)

	err := s.Scan(
		&t.ID, &typeStr, &categoryStr, &paymentMethod, &t.Amount.Cents,
		&t.Description, &date, &recurringID, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = core.TransactionType(typeStr)
	t.Category = core.Category(categoryStr)
	if paymentMethod.Valid {
		t.PaymentMethod = core.PaymentMethod(paymentMethod.String)
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	t.RecurringTransactionID = recurringID.String
	t.CreatedAt = parseTimestamp(createdAt)
	return &t, nil
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// sqlite's datetime('now') default
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// CreateRecurring inserts a new recurring transaction definition. The
// caller assigns the id; CreatedAt/UpdatedAt are set here.
func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rt *core.RecurringTransaction) error {
	now := time.Now().UTC()
	rt.CreatedAt = now
	rt.UpdatedAt = now

	query := `
		INSERT INTO recurring_transactions
			(id, type, category, payment_method, amount_cents, description,
			 frequency, start_date, end_date, day_of_month, day_of_week,
			 active, last_processed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rt.ID, string(rt.Type), string(rt.Category), nullString(string(rt.PaymentMethod)),
		rt.Amount.Cents, rt.Description, string(rt.Frequency),
		rt.StartDate.String(), nullDate(rt.EndDate),
		nullInt(rt.DayOfMonth), nullInt(rt.DayOfWeek),
		boolInt(rt.Active), nullDate(rt.LastProcessed),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert recurring transaction: %w", err)
	}

	slog.InfoContext(ctx, "Recurring transaction saved",
		applog.FieldDefinitionID, rt.ID,
		applog.FieldFrequency, rt.Frequency,
		applog.FieldAmountCents, rt.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, id string) (*core.RecurringTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id)
	rt, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring transaction: %w", err)
	}
	return rt, nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	return r.listRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions ORDER BY created_at, id`)
}

// ListActiveRecurring returns only definitions eligible for materialization.
func (r *SQLiteRepository) ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	return r.listRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE active = 1 ORDER BY created_at, id`)
}

func (r *SQLiteRepository) listRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}

// ToggleRecurringActive flips the active flag and returns the new state.
func (r *SQLiteRepository) ToggleRecurringActive(ctx context.Context, id string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE recurring_transactions
		SET active = 1 - active, updated_at = ?
		WHERE id = ?
		RETURNING active
	`, time.Now().UTC().Format(time.RFC3339), id)

	var active int64
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("toggle recurring transaction: %w", err)
	}

	slog.InfoContext(ctx, "Recurring transaction toggled", applog.FieldDefinitionID, id, "active", active != 0)
	return active != 0, nil
}

// DeleteRecurring removes a definition and every transaction generated from
// it, in one transaction. Irreversible.
func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	cascade, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE recurring_transaction_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete generated transactions: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM recurring_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	deleted, _ := cascade.RowsAffected()
	slog.InfoContext(ctx, "Recurring transaction deleted",
		applog.FieldDefinitionID, id,
		"cascaded_transactions", deleted)
	return nil
}

// AdvanceLastProcessed moves the idempotency watermark forward, never
// backward. Concurrent passes may both call this; the guard keeps the
// later date.
func (r *SQLiteRepository) AdvanceLastProcessed(ctx context.Context, id string, through core.Date) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_transactions
		SET last_processed = ?, updated_at = ?
		WHERE id = ? AND (last_processed IS NULL OR last_processed < ?)
	`, through.String(), time.Now().UTC().Format(time.RFC3339), id, through.String())
	if err != nil {
		return fmt.Errorf("advance last_processed: %w", err)
	}
	return nil
}

// CreateTransaction inserts a ledger entry. Inserts that collide with the
// unique (recurring_transaction_id, date) index return
// ErrDuplicateOccurrence.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	now := time.Now().UTC()
	t.CreatedAt = now

	query := `
		INSERT INTO transactions
			(id, type, category, payment_method, amount_cents, description,
			 date, recurring_transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, string(t.Type), string(t.Category), nullString(string(t.PaymentMethod)),
		t.Amount.Cents, t.Description, t.Date.String(),
		nullString(t.RecurringTransactionID), now.Format(time.RFC3339),
	)
	if err != nil {
		if isDuplicateOccurrence(err) {
			return ErrDuplicateOccurrence
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// isDuplicateOccurrence reports whether the insert tripped the unique
// occurrence index. Matches the driver's extended result code rather than
// the error text.
func isDuplicateOccurrence(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// TransactionFilter narrows ListTransactions. Zero fields are ignored.
type TransactionFilter struct {
	From        core.Date
	To          core.Date
	RecurringID string
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.RecurringID != "" {
		conds = append(conds, "recurring_transaction_id = ?")
		args = append(args, f.RecurringID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date, created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// MaterializedDates returns the occurrence dates already generated for a
// definition within [from, to]. The materializer uses this to skip
// candidates before attempting inserts; the unique index remains the
// authoritative guard.
func (r *SQLiteRepository) MaterializedDates(ctx context.Context, recurringID string, from, to core.Date) (map[core.Date]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date FROM transactions
		WHERE recurring_transaction_id = ? AND date >= ? AND date <= ?
	`, recurringID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query materialized dates: %w", err)
	}
	defer rows.Close()

	out := make(map[core.Date]struct{})
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		d, err := core.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out[d] = struct{}{}
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Summary aggregates totals by type for [from, to]; zero bounds mean
// unbounded.
func (r *SQLiteRepository) Summary(ctx context.Context, from, to core.Date) (core.Summary, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'INCOME' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'EXPENSE' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'INVESTMENT' THEN amount_cents ELSE 0 END), 0)
		FROM transactions
	`
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, from.String())
	}
	if !to.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, to.String())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var s core.Summary
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.TotalIncome.Cents, &s.TotalExpense.Cents, &s.TotalInvestment.Cents)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summary: %w", err)
	}
	s.Balance.Cents = s.TotalIncome.Cents - s.TotalExpense.Cents - s.TotalInvestment.Cents
	return s, nil
}

// PendingSync returns transactions not yet mirrored to the external ledger.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE synced = 0 AND sync_error = 0
		ORDER BY created_at, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET synced = 1, sync_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", applog.FieldTransactionID, id)
	return nil
}
