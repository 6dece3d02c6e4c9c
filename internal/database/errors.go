package database

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrNegativeCash       = errors.New("cash balance would go negative")
)
