package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnparseable   = errors.New("message not parseable")
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrMissingTag    = errors.New("project tag missing")
)
