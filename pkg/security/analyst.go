package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// AnalystAuthorizer verifies worker tokens on the cluster surface.
// Analyst tokens are signed with one shared secret distributed to
// workers out-of-band, not with per-user keys, and resolve to an
// endpoint-based [AnalystIdentity] rather than an Actor. The path
// never touches users, sessions, or the provisioner.
type AnalystAuthorizer struct {
	secret Secret

	// preferClaimedHost selects the token's host claim over the
	// observed remote address when building the callback endpoint.
	// Off by default: behind NAT the observed address is the one that
	// actually routes.
	preferClaimedHost bool

	scheme    string
	clockSkew time.Duration
}

// AnalystOption configures an AnalystAuthorizer.
type AnalystOption func(*AnalystAuthorizer)

// WithPreferClaimedHost makes the authorizer trust the token's host
// claim for the callback endpoint.
func WithPreferClaimedHost() AnalystOption {
	return func(a *AnalystAuthorizer) { a.preferClaimedHost = true }
}

// WithAnalystScheme overrides the callback URL scheme (default https).
func WithAnalystScheme(scheme string) AnalystOption {
	return func(a *AnalystAuthorizer) { a.scheme = scheme }
}

// WithAnalystClockSkew tolerates clock drift when checking expiry.
func WithAnalystClockSkew(skew time.Duration) AnalystOption {
	return func(a *AnalystAuthorizer) { a.clockSkew = skew }
}

// NewAnalystAuthorizer creates an AnalystAuthorizer with the shared
// worker secret.
func NewAnalystAuthorizer(secret Secret, opts ...AnalystOption) *AnalystAuthorizer {
	a := &AnalystAuthorizer{secret: secret, scheme: "https"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize verifies a worker token and returns the worker's
// identity. remoteAddr is the observed TCP peer ("host:port" or bare
// host), used as the endpoint host unless the authorizer is
// configured to prefer the claimed one. A token missing host, port,
// or version is rejected, as is any token without a future expiry.
func (a *AnalystAuthorizer) Authorize(ctx context.Context, token, remoteAddr string) (*AnalystIdentity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.clockSkew),
	)
	verified, err := parser.ParseWithClaims(token, jwt.MapClaims{},
		func(t *jwt.Token) (any, error) {
			return []byte(a.secret.Value()), nil
		})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	mc, ok := verified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, zerr.InvalidCredential("security: unable to extract claims")
	}

	host, _ := mc["host"].(string)
	version, _ := mc["version"].(string)
	port := intClaim(mc["port"])
	if host == "" || version == "" || port <= 0 {
		return nil, zerr.InvalidCredential(
			"security: analyst token is missing host, port, or version")
	}

	endpointHost := host
	if !a.preferClaimedHost {
		if observed := hostOnly(remoteAddr); observed != "" {
			endpointHost = observed
		}
	}

	endpoint, err := url.Parse(fmt.Sprintf("%s://%s:%d", a.scheme, endpointHost, port))
	if err != nil {
		return nil, zerr.InvalidCredential("security: analyst endpoint is not a valid URL")
	}
	return &AnalystIdentity{Endpoint: endpoint, Version: version}, nil
}

// intClaim reads a numeric claim that JSON decoding may have produced
// as float64, int, or a numeric string.
func intClaim(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		var out int
		if _, err := fmt.Sscanf(n, "%d", &out); err == nil {
			return out
		}
	}
	return 0
}

// hostOnly strips the port from a "host:port" remote address.
func hostOnly(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
