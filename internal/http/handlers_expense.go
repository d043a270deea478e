package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"kiadas/internal/core"
)

type expenseRow struct {
	ID       int64
	Date     string
	Category string
	Amount   string
	Username string
}

type categoryRow struct {
	Category string
	Amount   string
}

type monthRow struct {
	Month string
	Total string
}

type categoryOption struct {
	Value string
	Label string
}

func categoryOptions() []categoryOption {
	cats := core.Categories()
	opts := make([]categoryOption, 0, len(cats))
	for _, c := range cats {
		opts = append(opts, categoryOption{Value: string(c), Label: c.Label()})
	}
	return opts
}

func toExpenseRows(expenses []core.Expense) []expenseRow {
	rows := make([]expenseRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, expenseRow{
			ID:       e.ID,
			Date:     e.Date.ISO(),
			Category: e.Category.Label(),
			Amount:   e.Amount.Format(),
			Username: e.Username,
		})
	}
	return rows
}

type dashboardData struct {
	Username   string
	IsAdmin    bool
	Month      string
	Today      string
	Total      string
	Expenses   []expenseRow
	ByCategory []categoryRow
	Categories []categoryOption
	Error      string
}

// handleDashboard renders the month view: the expenses of one calendar
// month with their per-category breakdown and an add form for admins.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(r)
	if !sess.Active() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	now := time.Now()
	month := core.CurrentMonth(now)
	var pageErr string
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			pageErr = messageFor(err)
		} else {
			month = m
		}
	}

	data := dashboardData{
		Username:   sess.Username,
		IsAdmin:    sess.IsAdmin(),
		Month:      string(month),
		Today:      now.Format("2006-01-02"),
		Categories: categoryOptions(),
		Error:      pageErr,
	}

	expenses, err := s.ledger.ListMonth(r.Context(), sess, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Month listing failed", "error", err, "month", month)
		data.Error = messageFor(err)
		s.render(w, r, "index.html", data)
		return
	}

	agg, err := s.ledger.AggregateByCategory(r.Context(), sess, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Category aggregation failed", "error", err, "month", month)
		data.Error = messageFor(err)
		s.render(w, r, "index.html", data)
		return
	}

	var total core.Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}

	data.Expenses = toExpenseRows(expenses)
	data.Total = total.Format()
	// Stable category order for rendering
	for _, c := range core.Categories() {
		if amount, ok := agg[c]; ok {
			data.ByCategory = append(data.ByCategory, categoryRow{
				Category: c.Label(),
				Amount:   amount.Format(),
			})
		}
	}

	s.render(w, r, "index.html", data)
}

type expensesPageData struct {
	Username   string
	IsAdmin    bool
	Total      string
	Expenses   []expenseRow
	Monthly    []monthRow
	Categories []categoryOption
	Error      string
}

// handleExpenses renders the full ledger with per-month totals.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(r)
	if !sess.Active() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	listing, err := s.ledger.ListAll(r.Context(), sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Full listing failed", "error", err)
		http.Error(w, messageFor(err), http.StatusInternalServerError)
		return
	}

	data := expensesPageData{
		Username:   sess.Username,
		IsAdmin:    sess.IsAdmin(),
		Total:      listing.Total.Format(),
		Expenses:   toExpenseRows(listing.Expenses),
		Categories: categoryOptions(),
	}
	for _, mt := range listing.Monthly {
		data.Monthly = append(data.Monthly, monthRow{
			Month: string(mt.Month),
			Total: mt.Total.Format(),
		})
	}

	s.render(w, r, "expenses.html", data)
}

// parseExpenseForm reads the shared date/category/amount form fields.
func parseExpenseForm(r *http.Request) (core.Date, core.Category, core.Money, error) {
	date, err := core.ParseDate(r.Form.Get("date"))
	if err != nil {
		return core.Date{}, "", core.Money{}, err
	}

	category := core.Category(sanitizeInput(r.Form.Get("category")))
	if !category.Valid() {
		return core.Date{}, "", core.Money{}, core.ErrInvalidCategory
	}

	cents, err := core.ParseDecimalToCents(r.Form.Get("amount"))
	if err != nil {
		return core.Date{}, "", core.Money{}, err
	}

	return date, category, core.Money{Cents: cents}, nil
}

// redirectAfterMutation sends the browser back to the page the form
// came from, keeping the month filter where one was set.
func redirectAfterMutation(w http.ResponseWriter, r *http.Request) {
	target := r.Form.Get("return")
	if target != "/expenses" {
		target = "/"
		if m := r.Form.Get("month"); m != "" {
			if month, err := core.ParseMonth(m); err == nil {
				target = "/?month=" + string(month)
			}
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(r)
	if !sess.Active() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	date, category, amount, err := parseExpenseForm(r)
	if err != nil {
		http.Error(w, messageFor(err), http.StatusUnprocessableEntity)
		return
	}

	if _, err := s.ledger.Add(r.Context(), sess, date, category, amount); err != nil {
		writeLedgerError(w, r, err)
		return
	}

	redirectAfterMutation(w, r)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(r)
	if !sess.Active() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid expense id", http.StatusBadRequest)
		return
	}

	date, category, amount, err := parseExpenseForm(r)
	if err != nil {
		http.Error(w, messageFor(err), http.StatusUnprocessableEntity)
		return
	}

	if err := s.ledger.Update(r.Context(), sess, id, date, category, amount); err != nil {
		writeLedgerError(w, r, err)
		return
	}

	redirectAfterMutation(w, r)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(r)
	if !sess.Active() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid expense id", http.StatusBadRequest)
		return
	}

	if err := s.ledger.Delete(r.Context(), sess, id); err != nil {
		writeLedgerError(w, r, err)
		return
	}

	redirectAfterMutation(w, r)
}

func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidDate):
		status = http.StatusUnprocessableEntity
	default:
		slog.ErrorContext(r.Context(), "Ledger operation failed", "error", err)
	}
	http.Error(w, messageFor(err), status)
}
