package services

import (
	"errors"
	"fmt"

	"trackbus/internal/store"
)

var (
	ErrMissingField     = errors.New("missing field")
	ErrInvalidField     = errors.New("invalid field")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSessionNotReady  = errors.New("session not ready")
)

// ValidationError rejects a submission before anything is written.
type ValidationError struct {
	Field  string
	Err    error // ErrMissingField or ErrInvalidField
	Reason error // parse failure, if any
}

func (e *ValidationError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Field)
}

// Unwrap exposes Err and Reason. Every rejection also matches
// ErrMissingField; ErrInvalidField narrows it to a present but unusable value.
func (e *ValidationError) Unwrap() []error {
	errs := []error{e.Err}
	if e.Err != ErrMissingField {
		errs = append(errs, ErrMissingField)
	}
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	return errs
}

// WriteError reports that a valid submission could not be committed.
type WriteError struct {
	Collection store.Collection
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: write %s: %v", ErrStoreUnavailable, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Err: ErrMissingField}
}

func invalid(field string, reason error) *ValidationError {
	return &ValidationError{Field: field, Err: ErrInvalidField, Reason: reason}
}
