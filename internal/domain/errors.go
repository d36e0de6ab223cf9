package domain

import (
	"errors"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrStore             = errors.New("store unavailable")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPermissionDenied  = errors.New("permission denied")
)

// ValidationError lists the fields that failed validation. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": invalid " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
