// Package riptideerr defines the error taxonomy shared across every pipeline
// component: a typed code, a retryability flag, and an optional retry delay,
// wrapped so callers can still errors.As/errors.Is through to the cause.
package riptideerr

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a class of failure, independent of which component raised it.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeAdmissionDenied Code = "ADMISSION_DENIED"
	CodeDependency      Code = "DEPENDENCY"
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeTimeout         Code = "TIMEOUT"
	CodeStrategy        Code = "STRATEGY"
	CodeStorage         Code = "STORAGE"
	CodeInternal        Code = "INTERNAL"
)

// Error is the common error shape for the whole taxonomy.
type Error struct {
	Code       Code
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a non-retryable Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a non-retryable Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithRetry marks an Error retryable after the given delay.
func (e *Error) WithRetry(after time.Duration) *Error {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

// CircuitOpen builds the typed error C1 returns while a breaker is open.
func CircuitOpen(dependency string, retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeCircuitOpen,
		Message:    fmt.Sprintf("circuit open for %s", dependency),
		Retryable:  false, // not retried locally; caller decides fallback
		RetryAfter: retryAfter,
	}
}

// AdmissionDenied builds the typed error C12 returns on rate/budget denial.
func AdmissionDenied(reason string, retryAfter time.Duration) *Error {
	return (&Error{Code: CodeAdmissionDenied, Message: reason}).WithRetry(retryAfter)
}

// Timeout builds the typed error for a deadline exceeded.
func Timeout(phase string, retryAfter time.Duration) *Error {
	return (&Error{Code: CodeTimeout, Message: fmt.Sprintf("%s deadline exceeded", phase)}).WithRetry(retryAfter)
}

// AsError extracts the first *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsRetryable reports whether err (or any *Error in its chain) is retryable.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// RetryAfter returns the suggested retry delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	e, ok := AsError(err)
	if !ok {
		return 0, false
	}
	return e.RetryAfter, e.RetryAfter > 0 || e.Code == CodeCircuitOpen
}
