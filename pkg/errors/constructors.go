package errors

import (
	"errors"
	"fmt"
)

// New creates an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an *Error with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. Returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. Returns nil if
// err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Unauthorized creates a generic authentication error. All rejected
// credentials ultimately surface through this message shape; the
// interesting detail belongs in logs, not in the response.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// InvalidCredential creates an AUTH_003 error: the credential was
// recognized and rejected. The validator chain stops on this.
func InvalidCredential(message string) *Error {
	return New(CodeAuthInvalidCredential, message)
}

// UnknownIssuer creates an AUTH_004 error: the validator does not
// recognize the token and the chain should try the next one.
func UnknownIssuer(message string) *Error {
	return New(CodeAuthUnknownIssuer, message)
}

// Forbidden creates an authorization error for operations the actor
// lacks permission for.
func Forbidden(message string) *Error {
	return New(CodeAuthzForbidden, message)
}

// NotFound creates a general not found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// NotFoundf creates a not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// Validation creates a general validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Internal creates a general internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// UpstreamUnavailable creates an UNAVAIL_002 error for unreachable
// identity providers or the auth server.
func UpstreamUnavailable(message string) *Error {
	return New(CodeUnavailableUpstream, message)
}

// FromError converts any error into an *Error. If err already is one
// (anywhere in its chain) it is returned unchanged; otherwise it is
// wrapped as CodeInternal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "internal error")
}
