// Package ledger implements the expense operations: insert, month
// queries, category aggregation, full listing, update and delete.
// Every call takes the caller's Session explicitly; mutations require
// the admin role.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kiadas/internal/core"
	"kiadas/internal/events"
	"kiadas/internal/storage"
)

type Service struct {
	repo   *storage.Repository
	events *events.Client // nil when event publishing is disabled
}

func NewService(repo *storage.Repository, eventsClient *events.Client) *Service {
	return &Service{repo: repo, events: eventsClient}
}

func requireSession(sess core.Session) error {
	if !sess.Active() {
		return core.ErrPermissionDenied
	}
	return nil
}

func requireAdmin(sess core.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if !sess.IsAdmin() {
		return core.ErrPermissionDenied
	}
	return nil
}

// Add appends a new expense tagged with the session's username and
// returns the generated id.
func (s *Service) Add(ctx context.Context, sess core.Session, date core.Date, category core.Category, amount core.Money) (int64, error) {
	if err := requireAdmin(sess); err != nil {
		return 0, err
	}

	e := core.Expense{
		Date:     date,
		Category: category,
		Amount:   amount,
		Username: sess.Username,
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.repo.InsertExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("add expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense added",
		"expense_id", id,
		"date", date.ISO(),
		"category", category,
		"amount_cents", amount.Cents,
		"username", sess.Username)

	s.publish(ctx, events.ActionCreated, id, sess.Username)
	return id, nil
}

// ListMonth returns the expenses of one calendar month, newest first.
func (s *Service) ListMonth(ctx context.Context, sess core.Session, month core.Month) ([]core.Expense, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ExpensesByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list month: %w", err)
	}
	return expenses, nil
}

// AggregateByCategory returns the grouped sums for one month.
func (s *Service) AggregateByCategory(ctx context.Context, sess core.Session, month core.Month) (map[core.Category]core.Money, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	sums, err := s.repo.SumByCategory(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	agg := make(map[core.Category]core.Money, len(sums))
	for _, cs := range sums {
		agg[cs.Category] = cs.Amount
	}
	return agg, nil
}

// ListAll returns every expense newest first, the derived per-month
// totals and the overall sum.
func (s *Service) ListAll(ctx context.Context, sess core.Session) (core.Listing, error) {
	if err := requireSession(sess); err != nil {
		return core.Listing{}, err
	}

	expenses, err := s.repo.AllExpenses(ctx)
	if err != nil {
		return core.Listing{}, fmt.Errorf("list all: %w", err)
	}
	monthly, err := s.repo.MonthlyTotals(ctx)
	if err != nil {
		return core.Listing{}, fmt.Errorf("monthly totals: %w", err)
	}

	var total core.Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}

	return core.Listing{Expenses: expenses, Monthly: monthly, Total: total}, nil
}

// Update overwrites the date, category and amount of an existing row.
func (s *Service) Update(ctx context.Context, sess core.Session, id int64, date core.Date, category core.Category, amount core.Money) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}

	e := core.Expense{ID: id, Date: date, Category: category, Amount: amount}
	if err := e.Validate(); err != nil {
		return err
	}

	if err := s.repo.UpdateExpense(ctx, e); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		return fmt.Errorf("update expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated", "expense_id", id, "username", sess.Username)
	s.publish(ctx, events.ActionUpdated, id, sess.Username)
	return nil
}

// Delete removes a row. A second delete of the same id surfaces
// ErrNotFound, never a crash.
func (s *Service) Delete(ctx context.Context, sess core.Session, id int64) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}

	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		return fmt.Errorf("delete expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted", "expense_id", id, "username", sess.Username)
	s.publish(ctx, events.ActionDeleted, id, sess.Username)
	return nil
}

// publish is best-effort: a failed event never fails the mutation that
// already committed.
func (s *Service) publish(ctx context.Context, action string, id int64, username string) {
	if err := s.events.Publish(ctx, events.NewLedgerEvent(action, id, username)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"action", action, "expense_id", id, "error", err)
	}
}
