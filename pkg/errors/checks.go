package errors

import "errors"

// AsError extracts an *Error from err's chain. Returns nil, false if
// the chain contains none.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of err, or "" if err is nil or untyped.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsAuthentication reports whether err is any AUTH_xxx error.
func IsAuthentication(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTH"
}

// IsAuthorization reports whether err is any AUTHZ_xxx error.
func IsAuthorization(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTHZ"
}

// IsUnknownIssuer reports whether err tells the validator chain to
// try the next validator.
func IsUnknownIssuer(err error) bool {
	return HasCode(err, CodeAuthUnknownIssuer)
}

// IsInvalidCredential reports whether err stops the validator chain:
// a recognized-but-rejected credential or an expired token.
func IsInvalidCredential(err error) bool {
	return HasCode(err, CodeAuthInvalidCredential) || HasCode(err, CodeAuthExpired)
}

// IsValidation reports whether err is any VAL_xxx error.
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "VAL"
}

// IsInternal reports whether err is any INT_xxx error.
func IsInternal(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "INT"
}

// IsNotFound reports whether err is any NF_xxx error.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "NF"
}

// IsConflict reports whether err is any CONF_xxx error.
func IsConflict(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "CONF"
}

// IsUnavailable reports whether err is any UNAVAIL_xxx error.
func IsUnavailable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "UNAVAIL"
}

// IsTimeout reports whether err is any TIMEOUT_xxx error.
func IsTimeout(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "TIMEOUT"
}

// IsRetryable reports whether the failed operation may succeed if
// retried: unavailable dependencies and timeouts.
func IsRetryable(err error) bool {
	return IsUnavailable(err) || IsTimeout(err)
}

// IsServerError reports whether err maps to a 5xx HTTP status.
func IsServerError(err error) bool {
	e, ok := AsError(err)
	return ok && e.HTTPStatus() >= 500
}
