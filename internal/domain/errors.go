package domain

import (
	"errors"
	"time"
)

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("concurrent update conflict")

	// Share domain errors
	ErrShareNotFound      = errors.New("share not found")
	ErrShareRevoked       = errors.New("share has been revoked")
	ErrShareExpired       = errors.New("share has expired")
	ErrAccessLimitReached = errors.New("share access limit reached")
	ErrPermissionDenied   = errors.New("share permission does not allow this access")
	ErrNotOwner           = errors.New("caller does not own this share")

	// File domain errors
	ErrFileNotFound = errors.New("file not found")
	ErrNotFileOwner = errors.New("caller does not own this file")

	// Notification domain errors
	ErrNoRecipients = errors.New("no recipients given")
)

// IsNotFound returns true for any of the not-found sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrShareNotFound) || errors.Is(err, ErrFileNotFound)
}

// IsForbidden returns true for ownership or permission failures
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrNotFileOwner) || errors.Is(err, ErrPermissionDenied)
}

// IsUnavailableShare returns true for denials that must look identical to a
// prober: unknown, revoked, expired or exhausted
func IsUnavailableShare(err error) bool {
	return errors.Is(err, ErrShareNotFound) || errors.Is(err, ErrShareRevoked) ||
		errors.Is(err, ErrShareExpired) || errors.Is(err, ErrAccessLimitReached)
}

// ValidationError reports malformed input on a single field
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return "invalid " + e.Field + ": " + e.Message
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation returns true if the error is a validation failure
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidInput)
}

// RetryableError represents a transient failure the caller may retry,
// such as a store timeout or a busy database.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return "transient failure: " + e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
