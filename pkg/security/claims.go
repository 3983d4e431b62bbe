package security

import (
	"net/url"

	"github.com/google/uuid"
)

// Claims is the transient key/value payload a validator extracts from
// a verified credential, before provisioning turns it into an Actor.
// Claims are never persisted as-is.
type Claims map[string]any

// Well-known claim keys. Local tokens use ClaimUserID; external
// validators normalize provider-specific fields onto these keys before
// handing the claims to the provisioner.
const (
	ClaimIssuer      = "iss"
	ClaimSubject     = "sub"
	ClaimUserID      = "userId"
	ClaimSessionID   = "sessionId"
	ClaimName        = "name"
	ClaimEmail       = "email"
	ClaimLocale      = "locale"
	ClaimCompanyID   = "organizationId"
	ClaimPermissions = "permissions"

	// ClaimIssuerTag is set by external validators to record which
	// configured provider accepted the token. It keys the
	// (externalSubjectId, issuerTag) identity used by provisioning.
	ClaimIssuerTag = "issuerTag"
)

// String returns the string value of a claim, or "" if the claim is
// absent or not a string.
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// UUID parses a claim as a UUID. Returns uuid.Nil and false if the
// claim is absent or unparsable.
func (c Claims) UUID(key string) (uuid.UUID, bool) {
	s := c.String(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// StringSlice returns a claim as a slice of strings. It accepts both
// a JSON array of strings and a single string value (some providers
// flatten single-element lists).
func (c Claims) StringSlice(key string) []string {
	switch v := c[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Permissions returns the mapped local permissions carried in the
// claims, if any.
func (c Claims) Permissions() []Permission {
	names := c.StringSlice(ClaimPermissions)
	out := make([]Permission, 0, len(names))
	for _, n := range names {
		out = append(out, Permission(n))
	}
	return out
}

// AnalystIdentity is the principal of a distributed processing worker.
// It is endpoint-based, not user-based: analysts never have a project
// scope, never touch the provisioner, and are derived fresh from a
// signed worker token on every request.
type AnalystIdentity struct {
	// Endpoint is the worker's callback address.
	Endpoint *url.URL

	// Version is the worker's reported software version.
	Version string
}

// String returns "endpoint (version)" for logging.
func (a *AnalystIdentity) String() string {
	return a.Endpoint.String() + " (" + a.Version + ")"
}
