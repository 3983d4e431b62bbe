package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	e := New(CodeAuthInvalidCredential, "token signature is invalid")
	want := "AUTH_003: token signature is invalid"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	wrapped := Wrap(errors.New("boom"), CodeInternalDatabase, "query failed")
	want = "INT_002: query failed: boom"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	e := Wrap(cause, CodeInternal, "wrapped")
	if !errors.Is(e, cause) {
		t.Error("errors.Is did not find the wrapped cause")
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil, CodeInternal, "msg") != nil {
		t.Error("Wrap(nil) != nil")
	}
	if Wrapf(nil, CodeInternal, "msg %d", 1) != nil {
		t.Error("Wrapf(nil) != nil")
	}
}

func TestCode_Category(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeAuthInvalidCredential, "AUTH"},
		{CodeAuthzForbidden, "AUTHZ"},
		{CodeValidation, "VAL"},
		{CodeUnavailableUpstream, "UNAVAIL"},
		{CodeTimeoutDatabase, "TIMEOUT"},
		{Code("WEIRD"), "WEIRD"},
	}
	for _, tt := range tests {
		if got := tt.code.Category(); got != tt.want {
			t.Errorf("Category(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeAuthentication, http.StatusUnauthorized},
		{CodeAuthExpired, http.StatusUnauthorized},
		{CodeAuthInvalidCredential, http.StatusUnauthorized},
		{CodeAuthNoValidator, http.StatusUnauthorized},
		{CodeAuthzForbidden, http.StatusForbidden},
		{CodeAuthzProjectDisabled, http.StatusForbidden},
		{CodeNotFoundKey, http.StatusNotFound},
		{CodeConflictAlreadyExists, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
		{CodeUnavailableUpstream, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestChecks(t *testing.T) {
	if !IsUnknownIssuer(UnknownIssuer("not ours")) {
		t.Error("IsUnknownIssuer = false for UnknownIssuer error")
	}
	if IsUnknownIssuer(InvalidCredential("bad sig")) {
		t.Error("IsUnknownIssuer = true for InvalidCredential error")
	}
	if !IsInvalidCredential(InvalidCredential("bad sig")) {
		t.Error("IsInvalidCredential = false for InvalidCredential error")
	}
	if !IsInvalidCredential(New(CodeAuthExpired, "expired")) {
		t.Error("IsInvalidCredential = false for expired error")
	}
	if !IsAuthentication(UnknownIssuer("x")) {
		t.Error("IsAuthentication = false for AUTH_004")
	}
	if !IsAuthorization(Forbidden("no override permission")) {
		t.Error("IsAuthorization = false for AUTHZ_002")
	}
	if !IsNotFound(New(CodeNotFoundKey, "no key")) {
		t.Error("IsNotFound = false for NF_003")
	}
	if !IsUnavailable(UpstreamUnavailable("auth server down")) {
		t.Error("IsUnavailable = false for UNAVAIL_002")
	}
	if IsAuthentication(nil) {
		t.Error("IsAuthentication(nil) = true")
	}
}

func TestChecks_WrappedWithFmt(t *testing.T) {
	inner := Forbidden("project override denied")
	outer := fmt.Errorf("authorize: %w", inner)
	if !IsAuthorization(outer) {
		t.Error("IsAuthorization did not see through fmt.Errorf wrapping")
	}
	if GetCode(outer) != CodeAuthzForbidden {
		t.Errorf("GetCode = %s, want %s", GetCode(outer), CodeAuthzForbidden)
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Error("FromError(nil) != nil")
	}
	e := InvalidCredential("x")
	if FromError(e) != e {
		t.Error("FromError did not return the existing *Error")
	}
	converted := FromError(errors.New("plain"))
	if converted.Code != CodeInternal {
		t.Errorf("FromError(plain).Code = %s, want %s", converted.Code, CodeInternal)
	}
}

func TestWithDetail_DoesNotMutate(t *testing.T) {
	e := New(CodeAuthentication, "x").WithDetail("validator", "local")
	e2 := e.WithDetail("user", "abc")
	if len(e.Details) != 1 {
		t.Errorf("original Details mutated, len = %d", len(e.Details))
	}
	if len(e2.Details) != 2 {
		t.Errorf("copy Details len = %d, want 2", len(e2.Details))
	}
}
