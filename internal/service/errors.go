package service

import "errors"

var (
	ErrInvalidAccount = errors.New("account id is required")
	ErrInvalidAppID   = errors.New("app id is required")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidKind    = errors.New("transaction kind is not allowed for this operation")
)
