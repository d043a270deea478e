// Package storage owns the users and expenses tables. All access to
// persisted rows goes through the Repository; no other package caches
// or duplicates them.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kiadas/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and applies migrations.
// The pool is capped at one connection: writes are serialized through
// it, and in-memory databases keep a single coherent instance.
func New(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser inserts a new user row and returns its id.
func (r *Repository) CreateUser(ctx context.Context, username, email, passwordHash string, role core.Role) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?)`,
		username, email, passwordHash, string(role),
	)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "id", id, "username", username, "role", role)
	return id, nil
}

const userColumns = `id, username, COALESCE(email, ''), password_hash, COALESCE(reset_code, ''), role`

func (r *Repository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ResetCode, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrNotFound
		}
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = core.ParseRole(role)
	return u, nil
}

// UserByUsername looks up a user by exact, case-sensitive username.
func (r *Repository) UserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.scanUser(row)
}

// UserByEmail looks up a user by email address.
func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return r.scanUser(row)
}

// UserByResetCode looks up the user holding the given pending reset code.
func (r *Repository) UserByResetCode(ctx context.Context, code string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_code = ?`, code)
	return r.scanUser(row)
}

// SetResetCode stores a pending reset code, overwriting any prior one.
func (r *Repository) SetResetCode(ctx context.Context, username, code string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_code = ? WHERE username = ?`, code, username)
	if err != nil {
		return fmt.Errorf("set reset code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CompletePasswordReset replaces the password hash and clears the reset
// code in the same update, so a code can never be consumed twice.
func (r *Repository) CompletePasswordReset(ctx context.Context, userID int64, newHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, reset_code = NULL WHERE id = ?`, newHash, userID)
	if err != nil {
		return fmt.Errorf("complete password reset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Password reset completed", "user_id", userID)
	return nil
}

// InsertExpense appends a new expense row and returns the generated id.
func (r *Repository) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (date, category, amount_cents, username) VALUES (?, ?, ?, ?)`,
		e.Date.ISO(), string(e.Category), e.Amount.Cents, e.Username,
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

const expenseColumns = `id, date, category, amount_cents, username`

func scanExpense(scan func(dest ...any) error) (core.Expense, error) {
	var e core.Expense
	var date, category string
	if err := scan(&e.ID, &date, &category, &e.Amount.Cents, &e.Username); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Date = d
	e.Category = core.Category(category)
	return e, nil
}

// ExpenseByID retrieves a single expense.
func (r *Repository) ExpenseByID(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, core.ErrNotFound
		}
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *Repository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ExpensesByMonth returns the expenses whose date falls in the given
// month, newest first. The filter is a prefix match on the ISO date.
func (r *Repository) ExpensesByMonth(ctx context.Context, month core.Month) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE date LIKE ? ORDER BY date DESC, id DESC`,
		string(month)+"%",
	)
}

// AllExpenses returns every expense, newest first.
func (r *Repository) AllExpenses(ctx context.Context) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY date DESC, id DESC`)
}

// SumByCategory returns the per-category totals for a month.
func (r *Repository) SumByCategory(ctx context.Context, month core.Month) ([]core.CategoryAmount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents) FROM expenses WHERE date LIKE ? GROUP BY category`,
		string(month)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	var sums []core.CategoryAmount
	for rows.Next() {
		var category string
		var cents int64
		if err := rows.Scan(&category, &cents); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		sums = append(sums, core.CategoryAmount{
			Category: core.Category(category),
			Amount:   core.Money{Cents: cents},
		})
	}
	return sums, rows.Err()
}

// MonthlyTotals returns one total per distinct month present, newest first.
func (r *Repository) MonthlyTotals(ctx context.Context) ([]core.MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(date, 1, 7) AS month, SUM(amount_cents)
		 FROM expenses GROUP BY month ORDER BY month DESC`)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []core.MonthTotal
	for rows.Next() {
		var month string
		var cents int64
		if err := rows.Scan(&month, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		totals = append(totals, core.MonthTotal{
			Month: core.Month(month),
			Total: core.Money{Cents: cents},
		})
	}
	return totals, rows.Err()
}

// UpdateExpense overwrites the mutable fields of an existing row.
func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET date = ?, category = ?, amount_cents = ? WHERE id = ?`,
		e.Date.ISO(), string(e.Category), e.Amount.Cents, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteExpense removes a row. Deleting an id that is already gone
// returns ErrNotFound rather than failing hard.
func (r *Repository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// UserCount returns the number of registered users.
func (r *Repository) UserCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
