// pantry/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured API error rendered as {"error":{"code","message"}}.
type Error struct {
	// Code is machine-readable, e.g. "switch_failed".
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	Status int   `json:"-"`
	Err    error `json:"-"`
}

// Error formats the code and message, plus the cause when there is one.
// The cause is never sent to clients.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, possibly nil.
func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches one key to Details and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus defaults to 500 when Status is unset.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// New returns an *Error without a cause.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// Wrap returns an *Error whose cause is err. Only code and message
// reach the client; err is kept for logs and errors.Is.
func Wrap(err error, code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status, Err: err}
}

// From returns the *Error in err's chain, or an opaque internal error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeInternalError,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Is reports whether target is in err's chain, like errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain assignable to target, like
// errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// Error codes sent to clients in the "code" field. They are stable once
// published.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeInternalError      = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidInput       = "invalid_input"
	CodeSwitchFailed       = "switch_failed"
	CodeBadGateway         = "bad_gateway"
	CodeRateLimited        = "rate_limited"
)

// BadRequest is a 400 for malformed requests.
func BadRequest(message string) *Error {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized is a 401 for missing or rejected credentials.
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

// NotFound is a 404.
func NotFound(message string) *Error {
	return New(CodeNotFound, message, http.StatusNotFound)
}

// MethodNotAllowed is a 405.
func MethodNotAllowed(message string) *Error {
	return New(CodeMethodNotAllowed, message, http.StatusMethodNotAllowed)
}

// Internal is a 500 with a message safe to show the user.
func Internal(message string) *Error {
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

// ServiceUnavailable is a 503, used when a dependency is down.
func ServiceUnavailable(message string) *Error {
	return New(CodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// InvalidInput is a 400 for a well-formed request whose values are
// wrong, such as a missing schoolId.
func InvalidInput(message string) *Error {
	return New(CodeInvalidInput, message, http.StatusBadRequest)
}

// SwitchFailed reports a rejected or failed school switch. The message is
// shown to the user verbatim.
func SwitchFailed(message string, cause error) *Error {
	return Wrap(cause, CodeSwitchFailed, message, http.StatusBadGateway)
}
