package reporting

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnknownReportKind   = errors.New("unknown report kind")
	ErrNoCorridorAssigned  = errors.New("emitter has no assigned corridor")
	ErrStorage             = errors.New("storage failure")
	ErrReportNotFound      = errors.New("report not found")
	ErrDuplicateExternalID = errors.New("duplicate external id")
	ErrAudienceResolution  = errors.New("audience resolution failed")
	ErrDelivery            = errors.New("notification delivery failed")
)

// ValidationError names the payload field that was missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// UnknownKindError is returned for a kind tag with no registered constructor.
// It counts as a validation error.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown report kind %q", e.Kind)
}

func (e *UnknownKindError) Is(target error) bool {
	return target == ErrUnknownReportKind || target == ErrValidation
}

// StorageError wraps a persistence failure. Callers may retry the whole
// submission when it carries an external id.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsRetryable reports whether resubmitting may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}
