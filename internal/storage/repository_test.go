package storage

import (
	"context"
	"testing"

	"kiadas/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	repo *Repository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	repo, err := New(":memory:")
	require.NoError(s.T(), err, "failed to open test database")
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositoryTestSuite) TestMigrationsAreIdempotent() {
	// Re-running migrations on an already-migrated database is a no-op.
	err := RunMigrations(s.repo.db)
	assert.NoError(s.T(), err)
}

func (s *RepositoryTestSuite) TestCreateAndFetchUser() {
	id, err := s.repo.CreateUser(s.ctx, "alice", "a@x.com", "digest", core.RoleViewer)
	require.NoError(s.T(), err)
	assert.Greater(s.T(), id, int64(0))

	u, err := s.repo.UserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice", u.Username)
	assert.Equal(s.T(), "a@x.com", u.Email)
	assert.Equal(s.T(), "digest", u.PasswordHash)
	assert.Equal(s.T(), core.RoleViewer, u.Role)
	assert.Empty(s.T(), u.ResetCode)

	byEmail, err := s.repo.UserByEmail(s.ctx, "a@x.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, byEmail.ID)
}

func (s *RepositoryTestSuite) TestDuplicateUsernameRejectedBySchema() {
	_, err := s.repo.CreateUser(s.ctx, "alice", "a@x.com", "digest", core.RoleViewer)
	require.NoError(s.T(), err)

	_, err = s.repo.CreateUser(s.ctx, "alice", "other@x.com", "digest", core.RoleViewer)
	assert.Error(s.T(), err, "unique constraint should reject the second row")

	count, err := s.repo.UserCount(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, count)
}

func (s *RepositoryTestSuite) TestUnknownUserLookup() {
	_, err := s.repo.UserByUsername(s.ctx, "ghost")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestUsernameIsCaseSensitive() {
	_, err := s.repo.CreateUser(s.ctx, "alice", "a@x.com", "digest", core.RoleViewer)
	require.NoError(s.T(), err)

	_, err = s.repo.UserByUsername(s.ctx, "Alice")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestResetCodeLifecycle() {
	id, err := s.repo.CreateUser(s.ctx, "alice", "a@x.com", "digest", core.RoleViewer)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.repo.SetResetCode(s.ctx, "alice", "AB12CD"))

	u, err := s.repo.UserByResetCode(s.ctx, "AB12CD")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), id, u.ID)

	// A second request overwrites the prior code.
	require.NoError(s.T(), s.repo.SetResetCode(s.ctx, "alice", "ZZ99ZZ"))
	_, err = s.repo.UserByResetCode(s.ctx, "AB12CD")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	// Completing the reset swaps the hash and clears the code atomically.
	require.NoError(s.T(), s.repo.CompletePasswordReset(s.ctx, id, "newdigest"))

	u, err = s.repo.UserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "newdigest", u.PasswordHash)
	assert.Empty(s.T(), u.ResetCode)

	_, err = s.repo.UserByResetCode(s.ctx, "ZZ99ZZ")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestSetResetCodeUnknownUser() {
	err := s.repo.SetResetCode(s.ctx, "ghost", "AB12CD")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) mustInsert(date string, category core.Category, cents int64) int64 {
	d, err := core.ParseDate(date)
	require.NoError(s.T(), err)
	id, err := s.repo.InsertExpense(s.ctx, core.Expense{
		Date:     d,
		Category: category,
		Amount:   core.Money{Cents: cents},
		Username: "alice",
	})
	require.NoError(s.T(), err)
	return id
}

func (s *RepositoryTestSuite) TestExpensesByMonth() {
	s.mustInsert("2025-01-05", core.CategoryRent, 50000)
	s.mustInsert("2025-01-10", core.CategoryElectricity, 10000)
	s.mustInsert("2025-02-01", core.CategoryRent, 50000)

	expenses, err := s.repo.ExpensesByMonth(s.ctx, core.Month("2025-01"))
	require.NoError(s.T(), err)
	require.Len(s.T(), expenses, 2)

	// Ordered by date descending.
	assert.Equal(s.T(), "2025-01-10", expenses[0].Date.ISO())
	assert.Equal(s.T(), "2025-01-05", expenses[1].Date.ISO())

	var total core.Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	assert.Equal(s.T(), int64(60000), total.Cents)
}

func (s *RepositoryTestSuite) TestSumByCategory() {
	s.mustInsert("2025-01-05", core.CategoryRent, 50000)
	s.mustInsert("2025-01-10", core.CategoryElectricity, 10000)
	s.mustInsert("2025-02-01", core.CategoryRent, 50000)

	sums, err := s.repo.SumByCategory(s.ctx, core.Month("2025-01"))
	require.NoError(s.T(), err)

	byCategory := make(map[core.Category]int64)
	for _, cs := range sums {
		byCategory[cs.Category] = cs.Amount.Cents
	}
	assert.Equal(s.T(), map[core.Category]int64{
		core.CategoryRent:        50000,
		core.CategoryElectricity: 10000,
	}, byCategory)
}

func (s *RepositoryTestSuite) TestMonthlyTotals() {
	s.mustInsert("2025-01-05", core.CategoryRent, 50000)
	s.mustInsert("2025-01-10", core.CategoryElectricity, 10000)
	s.mustInsert("2025-02-01", core.CategoryRent, 50000)

	totals, err := s.repo.MonthlyTotals(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), totals, 2)

	assert.Equal(s.T(), core.Month("2025-02"), totals[0].Month)
	assert.Equal(s.T(), int64(50000), totals[0].Total.Cents)
	assert.Equal(s.T(), core.Month("2025-01"), totals[1].Month)
	assert.Equal(s.T(), int64(60000), totals[1].Total.Cents)
}

func (s *RepositoryTestSuite) TestUpdateExpense() {
	id := s.mustInsert("2025-01-05", core.CategoryRent, 50000)

	d, err := core.ParseDate("2025-01-06")
	require.NoError(s.T(), err)
	err = s.repo.UpdateExpense(s.ctx, core.Expense{
		ID:       id,
		Date:     d,
		Category: core.CategoryHeating,
		Amount:   core.Money{Cents: 12345},
	})
	require.NoError(s.T(), err)

	e, err := s.repo.ExpenseByID(s.ctx, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2025-01-06", e.Date.ISO())
	assert.Equal(s.T(), core.CategoryHeating, e.Category)
	assert.Equal(s.T(), int64(12345), e.Amount.Cents)
	// The creator tag survives an update.
	assert.Equal(s.T(), "alice", e.Username)
}

func (s *RepositoryTestSuite) TestUpdateMissingExpense() {
	d, err := core.ParseDate("2025-01-06")
	require.NoError(s.T(), err)
	err = s.repo.UpdateExpense(s.ctx, core.Expense{ID: 999, Date: d, Category: core.CategoryOther})
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestDeleteExpenseTwice() {
	id := s.mustInsert("2025-01-05", core.CategoryRent, 50000)

	require.NoError(s.T(), s.repo.DeleteExpense(s.ctx, id))

	err := s.repo.DeleteExpense(s.ctx, id)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
