package core

import (
	"strings"
	"time"
)

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
	// RoleUndefined marks a stored role value outside the known set.
	// An undefined role never passes the admin check.
	RoleUndefined Role = ""
)

const (
	CategoryRent        Category = "rent"
	CategorySharedCost  Category = "shared-cost"
	CategoryElectricity Category = "electricity"
	CategoryColdWater   Category = "cold-water"
	CategoryHotWater    Category = "hot-water"
	CategoryHeating     Category = "heating"
	CategoryInternetTV  Category = "internet-tv"
	CategoryOther       Category = "other"
)

type (
	Role     string
	Category string

	// Month is a calendar month in "YYYY-MM" form, used for prefix
	// filtering on stored ISO dates.
	Month string

	Date struct {
		time.Time
	}

	// User is a registered household member.
	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash string
		ResetCode    string // empty when no reset is pending
		Role         Role
	}

	// Session is the authenticated identity a caller holds between
	// operations. It is returned by login and passed explicitly into
	// every ledger call; there is no ambient session state.
	Session struct {
		Username string
		Role     Role
	}

	Expense struct {
		ID       int64
		Date     Date
		Category Category
		Amount   Money
		Username string // creator tag, not used for read filtering
	}

	// MonthTotal is one row of the per-month breakdown on the full listing.
	MonthTotal struct {
		Month Month
		Total Money
	}

	// CategoryAmount is an amount aggregated under one category.
	CategoryAmount struct {
		Category Category
		Amount   Money
	}

	// Listing is the full ledger view: every expense plus the derived
	// monthly totals.
	Listing struct {
		Expenses []Expense
		Monthly  []MonthTotal
		Total    Money
	}
)

// ParseRole maps a stored role string onto the known set. Anything else
// comes back as RoleUndefined rather than being coerced to a default.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleViewer:
		return RoleViewer
	default:
		return RoleUndefined
	}
}

// IsAdmin reports whether the session may mutate the ledger.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Active reports whether the session belongs to a logged-in user.
func (s Session) Active() bool {
	return s.Username != ""
}

// Categories returns the fixed closed set of expense categories.
func Categories() []Category {
	return []Category{
		CategoryRent,
		CategorySharedCost,
		CategoryElectricity,
		CategoryColdWater,
		CategoryHotWater,
		CategoryHeating,
		CategoryInternetTV,
		CategoryOther,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Label returns a human-readable name for the category.
func (c Category) Label() string {
	switch c {
	case CategoryRent:
		return "Rent"
	case CategorySharedCost:
		return "Shared cost"
	case CategoryElectricity:
		return "Electricity"
	case CategoryColdWater:
		return "Cold water"
	case CategoryHotWater:
		return "Hot water"
	case CategoryHeating:
		return "Heating"
	case CategoryInternetTV:
		return "Internet / TV"
	case CategoryOther:
		return "Other"
	default:
		return string(c)
	}
}

const isoDateLayout = "2006-01-02"

// ParseDate parses an ISO 8601 calendar date ("2025-01-05").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// NewDate builds a Date from year, month and day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ISO renders the date in its stored "YYYY-MM-DD" form.
func (d Date) ISO() string {
	return d.Format(isoDateLayout)
}

// MonthKey returns the "YYYY-MM" month the date falls in.
func (d Date) MonthKey() Month {
	return Month(d.Format("2006-01"))
}

// ParseMonth validates a "YYYY-MM" month string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidMonth
	}
	return Month(t.Format("2006-01")), nil
}

// CurrentMonth returns the month containing now.
func CurrentMonth(now time.Time) Month {
	return Month(now.Format("2006-01"))
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if e.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}
