// Package apperrors provides structured application errors that separate
// retryable from fatal conditions.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")         // caller input is invalid, never retried
	ErrConfig     = errors.New("configuration error")      // fatal, will not resolve on retry
	ErrRejected   = errors.New("backend rejected request") // caller must change input and resubmit
	ErrTransient  = errors.New("transient error")          // expected to resolve without intervention
	ErrProtocol   = errors.New("protocol violation")       // contract mismatch with a collaborator
	ErrInternal   = errors.New("internal error")
)

// Error provides a structured error with a machine-checkable code.
type Error struct {
	Sentinel   error         // Wrapped sentinel for errors.Is() classification
	Code       string        // Machine-checkable code (e.g., "BUCKET_NOT_FOUND")
	Message    string        // Human-readable message
	Op         string        // Operation that failed (e.g., "store.head")
	Violations []string      // For validation errors, every violation found
	RetryAfter time.Duration // For transient errors, suggested retry delay
	Cause      error         // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error carrying every violation found.
func Validation(code string, violations []string) error {
	msg := "input validation failed"
	if len(violations) == 1 {
		msg = violations[0]
	}
	return &Error{
		Sentinel:   ErrValidation,
		Code:       code,
		Message:    msg,
		Violations: violations,
	}
}

// Config creates a fatal configuration error.
func Config(code, message string) error {
	return &Error{
		Sentinel: ErrConfig,
		Code:     code,
		Message:  message,
	}
}

// Rejected creates a non-retryable backend rejection.
func Rejected(code, message string) error {
	return &Error{
		Sentinel: ErrRejected,
		Code:     code,
		Message:  message,
	}
}

// Transient creates a retryable error with a suggested retry delay.
func Transient(code, message string, retryAfter time.Duration) error {
	return &Error{
		Sentinel:   ErrTransient,
		Code:       code,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// Protocol creates a fatal contract-mismatch error.
func Protocol(code, message string) error {
	return &Error{
		Sentinel: ErrProtocol,
		Code:     code,
		Message:  message,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Code:     "INTERNAL_ERROR",
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Retryable reports whether the error is expected to resolve on retry
// without caller intervention.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Code extracts the machine-checkable code from an error.
// Unclassified errors report "INTERNAL_ERROR".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// RetryAfter extracts the suggested retry delay from a transient error.
// Returns zero for non-transient errors.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Violations extracts the violation list from a validation error.
func Violations(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}
