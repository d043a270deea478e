package core

import "errors"

// Error taxonomy shared by the account and ledger services. Handlers
// classify with errors.Is; anything not in this set is an underlying
// store failure wrapped with %w.
var (
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidCode        = errors.New("invalid reset code")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")

	ErrEmptyField      = errors.New("required field is empty")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMonth    = errors.New("invalid month")
)
