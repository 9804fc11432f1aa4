package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrReconciliationConflict reports an optimistic-lock miss while writing
	// an advisory batch. Callers re-read current state and retry.
	ErrReconciliationConflict = errors.New("reconciliation conflict")
)

// ValidationError rejects malformed or out-of-range metric input at the
// ingest boundary. The offending record is never partially stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidArgument }

func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func NewValidationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError marks a record that references an entity that does not
// exist, e.g. a metric for a deleted field. Fatal to that record only;
// batch ingestion logs it and continues.
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Entity, e.ID)
}

func NewConflict(entity, id string) *ConflictError {
	return &ConflictError{Entity: entity, ID: id}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
