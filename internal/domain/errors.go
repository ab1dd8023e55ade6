package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrBudgetExceeded    = errors.New("budget exceeded")
	ErrMissingCredential = errors.New("no provider credential configured")
	ErrActiveJobExists   = errors.New("an active render job already exists for this version")
	ErrInvalidRetry      = errors.New("retry not permitted")
	ErrInvalidReset      = errors.New("reset not permitted")
	ErrNoOutput          = errors.New("completed render has no output asset")
)
