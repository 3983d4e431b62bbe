package errors

import "strings"

// Code is a stable, machine-readable error code. Codes follow the
// pattern CATEGORY_NNN and never change meaning once assigned.
type Code string

// Code categories and their HTTP mappings:
//
//	VAL_xxx     - request validation     (400)
//	AUTH_xxx    - authentication         (401)
//	AUTHZ_xxx   - authorization          (403)
//	NF_xxx      - not found              (404)
//	CONF_xxx    - conflict               (409)
//	INT_xxx     - internal               (500)
//	UNAVAIL_xxx - dependency unavailable (503)
//	TIMEOUT_xxx - timeout                (504)
const (
	// CodeValidation indicates a general input validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthExpired indicates the credential has expired.
	CodeAuthExpired Code = "AUTH_002"

	// CodeAuthInvalidCredential indicates a credential that a validator
	// recognized but rejected: malformed token, bad signature, missing
	// signing key, or an unreachable upstream verifier (fail closed).
	// The master validator stops the chain on this code.
	CodeAuthInvalidCredential Code = "AUTH_003"

	// CodeAuthUnknownIssuer indicates a validator does not recognize the
	// token's issuer. The master validator skips to the next validator
	// on this code; it is never returned to a client directly.
	CodeAuthUnknownIssuer Code = "AUTH_004"

	// CodeAuthNoValidator indicates the validator chain was exhausted
	// with every validator reporting an unknown issuer.
	CodeAuthNoValidator Code = "AUTH_005"

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthzForbidden indicates the actor attempted an operation it
	// has no permission for, such as a project override without
	// SystemProjectOverride.
	CodeAuthzForbidden Code = "AUTHZ_002"

	// CodeAuthzProjectDisabled indicates the resolved project is not
	// currently enabled (soft-deleted tenant).
	CodeAuthzProjectDisabled Code = "AUTHZ_003"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user does not exist.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundKey indicates no signing key exists for the identity.
	// Key lookups fail closed; there is no fallback secret.
	CodeNotFoundKey Code = "NF_003"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists indicates a uniqueness violation, such
	// as two concurrent provisioning attempts for one external subject.
	CodeConflictAlreadyExists Code = "CONF_002"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates invalid configuration.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general unavailability error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableUpstream indicates an identity provider or the
	// auth server could not be reached. Authentication treats this as a
	// hard failure, never as permission to fall through to a
	// lower-assurance path.
	CodeUnavailableUpstream Code = "UNAVAIL_002"

	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// Category returns the category prefix of the code (e.g. "AUTH").
func (c Code) Category() string {
	s := string(c)
	if i := strings.LastIndex(s, "_"); i > 0 {
		return s[:i]
	}
	return s
}

// String returns the code as a string.
func (c Code) String() string {
	return string(c)
}
