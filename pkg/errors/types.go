// Package errors provides the structured error type used throughout the
// Archivist backend. Every failure that crosses a package boundary is an
// *Error carrying a stable machine-readable code, a message that is safe
// to show to API clients, and an optional wrapped cause.
//
// The authentication subsystem leans on the code taxonomy heavily: the
// master credential validator distinguishes "this validator does not
// recognize the token" (CodeAuthUnknownIssuer, try the next one) from
// "the token is recognized but bad" (CodeAuthInvalidCredential, stop
// immediately), and transport middleware maps codes to HTTP statuses
// without inspecting messages.
//
// Messages on rejected credentials are deliberately generic; the detail
// of which validator failed and why stays in server-side logs.
package errors

import (
	"fmt"
	"net/http"
)

// Error is a structured error with a stable code, a client-safe message,
// and an optional cause. Error values are immutable after creation.
type Error struct {
	// Code is the machine-readable error code (e.g. "AUTH_003").
	Code Code

	// Message is the human-readable message. It may be returned to API
	// clients and must not contain secrets, signatures, or internal paths.
	Message string

	// Cause is the wrapped underlying error, if any.
	Cause error

	// Details carries optional structured context for logging. Details
	// are never serialized into client responses.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error's code category to an HTTP status code.
// Authentication failures of every flavor map to 401 so that rejected
// credentials are indistinguishable to the caller.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a copy of the error with one detail added.
// The receiver is not modified.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

// Format implements fmt.Formatter. %+v includes the cause chain and
// details; %v and %s print the standard Error() string.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
