// Package domain holds the error taxonomy shared by every bounded context.
// Context packages wrap these sentinels so callers can match with errors.Is
// regardless of which component produced the failure.
package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrSignatureMismatch     = errors.New("signature mismatch")
	ErrValidation            = errors.New("validation")
	ErrConflict              = errors.New("conflict")
)
