package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeParsing           ErrorType = "parsing"
	ErrorTypeBadRequest        ErrorType = "bad_request"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeAttemptsExhausted ErrorType = "attempts_exhausted"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error represents a harvest failure with type information.
// Code is the HTTP status when one was received, 0 otherwise.
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given type.
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given type around an underlying cause.
func Wrap(t ErrorType, code int, err error, message string) *Error {
	return &Error{Type: t, Code: code, Message: message, Err: err}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsAuth reports whether err is a session/credential failure.
func IsAuth(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeAuth
}

// IsParse reports whether err is an unrecognizable page envelope.
func IsParse(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeParsing
}

// IsExhausted reports whether err is a retry budget running out.
func IsExhausted(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeAttemptsExhausted
}
