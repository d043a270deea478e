package accounts

import (
	"context"
	"strings"
	"testing"

	"kiadas/internal/core"
	"kiadas/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := HashPassword("correct")
	b := HashPassword("correct")
	if a != b {
		t.Fatal("same input must yield the same digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == HashPassword("wrong") {
		t.Fatal("different inputs should yield different digests")
	}
	if !VerifyPassword("correct", a) {
		t.Fatal("verification must accept the original password")
	}
	if VerifyPassword("wrong", a) {
		t.Fatal("verification must reject a different password")
	}
}

func TestGenerateResetCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateResetCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 characters, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(resetCodeAlphabet, r) {
				t.Fatalf("character %q outside alphabet", r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("codes should not all be identical")
	}
}

func TestGenerateResetCodeCoversAlphabet(t *testing.T) {
	// 500 codes give 3000 character draws; under a uniform draw every
	// alphabet position appears with overwhelming probability.
	counts := make(map[rune]int)
	for i := 0; i < 500; i++ {
		code, err := GenerateResetCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, r := range code {
			counts[r]++
		}
	}
	for _, r := range resetCodeAlphabet {
		if counts[r] == 0 {
			t.Fatalf("alphabet character %q never drawn", r)
		}
	}
}

type AccountsTestSuite struct {
	suite.Suite
	repo *storage.Repository
	svc  *Service
	ctx  context.Context
}

func (s *AccountsTestSuite) SetupTest() {
	repo, err := storage.New(":memory:")
	require.NoError(s.T(), err, "failed to open test database")
	s.repo = repo
	s.svc = NewService(repo)
	s.ctx = context.Background()
}

func (s *AccountsTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *AccountsTestSuite) TestRegisterAndLogin() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "correct"))

	sess, err := s.svc.Login(s.ctx, "alice", "correct")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice", sess.Username)
	assert.Equal(s.T(), core.RoleViewer, sess.Role)
	assert.False(s.T(), sess.IsAdmin())

	_, err = s.svc.Login(s.ctx, "alice", "wrong")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)

	_, err = s.svc.Login(s.ctx, "nobody", "correct")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)
}

func (s *AccountsTestSuite) TestRegisterDuplicateUsername() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "pw"))

	err := s.svc.Register(s.ctx, "alice", "other@x.com", "pw")
	assert.ErrorIs(s.T(), err, core.ErrDuplicateUsername)

	count, err := s.repo.UserCount(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, count, "store must retain exactly one row for the username")
}

func (s *AccountsTestSuite) TestRegisterDuplicateEmail() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "pw"))

	err := s.svc.Register(s.ctx, "bob", "a@x.com", "pw")
	assert.ErrorIs(s.T(), err, core.ErrDuplicateEmail)
}

func (s *AccountsTestSuite) TestRegisterEmptyFields() {
	for _, tc := range []struct{ username, email, password string }{
		{"", "a@x.com", "pw"},
		{"alice", "", "pw"},
		{"alice", "a@x.com", ""},
	} {
		err := s.svc.Register(s.ctx, tc.username, tc.email, tc.password)
		assert.ErrorIs(s.T(), err, core.ErrEmptyField)
	}
}

func (s *AccountsTestSuite) TestResetFlow() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "correct"))

	code, err := s.svc.RequestReset(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Len(s.T(), code, 6)

	require.NoError(s.T(), s.svc.ConfirmReset(s.ctx, code, "new1", "new1"))

	// New password works, old one no longer does.
	_, err = s.svc.Login(s.ctx, "alice", "new1")
	assert.NoError(s.T(), err)
	_, err = s.svc.Login(s.ctx, "alice", "correct")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)

	// The code is single-use.
	err = s.svc.ConfirmReset(s.ctx, code, "again", "again")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCode)
}

func (s *AccountsTestSuite) TestResetOverwritesPriorCode() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "correct"))

	first, err := s.svc.RequestReset(s.ctx, "alice")
	require.NoError(s.T(), err)
	second, err := s.svc.RequestReset(s.ctx, "alice")
	require.NoError(s.T(), err)

	if first != second {
		err = s.svc.ConfirmReset(s.ctx, first, "new1", "new1")
		assert.ErrorIs(s.T(), err, core.ErrInvalidCode, "overwritten code must be rejected")
	}
	assert.NoError(s.T(), s.svc.ConfirmReset(s.ctx, second, "new1", "new1"))
}

func (s *AccountsTestSuite) TestResetUnknownUser() {
	_, err := s.svc.RequestReset(s.ctx, "ghost")
	assert.ErrorIs(s.T(), err, core.ErrUnknownUser)
}

func (s *AccountsTestSuite) TestConfirmResetPasswordMismatch() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "correct"))

	code, err := s.svc.RequestReset(s.ctx, "alice")
	require.NoError(s.T(), err)

	err = s.svc.ConfirmReset(s.ctx, code, "new1", "new2")
	assert.ErrorIs(s.T(), err, core.ErrPasswordMismatch)

	// Mismatch does not consume the code.
	assert.NoError(s.T(), s.svc.ConfirmReset(s.ctx, code, "new1", "new1"))
}

func (s *AccountsTestSuite) TestUserEmail() {
	require.NoError(s.T(), s.svc.Register(s.ctx, "alice", "a@x.com", "pw"))

	email, err := s.svc.UserEmail(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "a@x.com", email)

	_, err = s.svc.UserEmail(s.ctx, "ghost")
	assert.ErrorIs(s.T(), err, core.ErrUnknownUser)
}

func TestAccountsSuite(t *testing.T) {
	suite.Run(t, new(AccountsTestSuite))
}
