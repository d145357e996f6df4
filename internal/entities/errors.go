package entities

import "errors"

var (
	ErrUnresolvableAccount = errors.New("unresolvable account")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrInvalidMnemonic     = errors.New("invalid mnemonic")
	ErrUnsupportedToken    = errors.New("unsupported token")
	ErrCompletionTimeout   = errors.New("transaction completion timed out")
)
