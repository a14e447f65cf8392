// Package errors provides the typed errors raised by the query and bulk-write layer.
//
// Only two kinds originate here: CONFLICT (a uniqueness constraint was violated
// on insert) and BAD_INPUT (a filter, ordering or row could not be mapped onto
// the table schema). Driver, network and pool failures are passed through
// untouched so callers keep the full diagnostic chain.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeConflict    = "CONFLICT"
	CodeBadInput    = "BAD_INPUT"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

// Error is a coded error with an optional driver detail and cause.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Detail  string                 `json:"detail,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails replaces the structured details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithDetail adds a single structured detail.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrConflict    = &Error{Code: CodeConflict, Message: "unique constraint violated"}
	ErrBadInput    = &Error{Code: CodeBadInput, Message: "bad input"}
	ErrUnavailable = &Error{Code: CodeUnavailable, Message: "database unavailable"}
)

// New creates a new Error with the given code and message.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps err with a code and message. A nil err yields nil.
func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Conflict reports a uniqueness violation. detail is the driver's constraint
// detail string and is kept verbatim.
func Conflict(detail string, cause error) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: "unique constraint violated",
		Detail:  detail,
		Cause:   cause,
	}
}

// BadInput reports a caller-supplied shape that cannot be executed.
func BadInput(message string) *Error {
	return New(CodeBadInput, message)
}

// BadInputf is BadInput with a formatted message.
func BadInputf(format string, args ...interface{}) *Error {
	return New(CodeBadInput, fmt.Sprintf(format, args...))
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	return hasCode(err, CodeConflict)
}

// IsBadInput checks if an error is a bad input error.
func IsBadInput(err error) bool {
	return hasCode(err, CodeBadInput)
}

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool {
	return hasCode(err, CodeUnavailable)
}

// ConflictDetail returns the constraint detail of a conflict error, if any.
func ConflictDetail(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeConflict {
		return e.Detail, true
	}
	return "", false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
