package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// Issuer is the iss claim stamped on every token this system signs:
// session tokens, API tokens, and signed auth-server requests.
const Issuer = "zorroa-archivist"

// DefaultSessionTTL is the lifetime of a session token when the
// issuer is not configured otherwise.
const DefaultSessionTTL = 60 * time.Minute

// TokenIssuer mints the two local token shapes. Session tokens carry
// a session id and an expiry; API tokens carry neither, so their only
// revocation mechanism is deleting the owner's signing key.
//
// Every token is signed HS512 with the owner's own key from the
// [SigningKeyStore]; there is no shared signing secret.
type TokenIssuer struct {
	keys       SigningKeyStore
	sessionTTL time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithSessionTTL overrides the session token lifetime.
func WithSessionTTL(ttl time.Duration) TokenIssuerOption {
	return func(t *TokenIssuer) { t.sessionTTL = ttl }
}

// WithClock overrides the issuer's clock. Used by tests.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) { t.now = now }
}

// NewTokenIssuer creates a TokenIssuer backed by the given key store.
func NewTokenIssuer(keys SigningKeyStore, opts ...TokenIssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		keys:       keys,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IssueSessionToken mints a short-lived interactive login token for
// the user. The sessionId claim is a fresh random value identifying
// this login, and the exp claim bounds its lifetime.
func (t *TokenIssuer) IssueSessionToken(ctx context.Context, userID uuid.UUID) (string, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return "", zerr.Wrap(err, zerr.CodeInternal, "security: generating session id")
	}
	claims := jwt.MapClaims{
		ClaimIssuer:    Issuer,
		ClaimUserID:    userID.String(),
		ClaimSessionID: sessionID,
		"exp":          t.now().Add(t.sessionTTL).Unix(),
	}
	return t.sign(ctx, userID, claims)
}

// IssueAPIToken mints a long-lived programmatic token for the user.
// It carries no expiry and no session id; deleting the user's signing
// key is the only way to revoke it.
func (t *TokenIssuer) IssueAPIToken(ctx context.Context, userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		ClaimIssuer: Issuer,
		ClaimUserID: userID.String(),
	}
	return t.sign(ctx, userID, claims)
}

func (t *TokenIssuer) sign(ctx context.Context, userID uuid.UUID, claims jwt.MapClaims) (string, error) {
	key, err := t.keys.Key(ctx, userID)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(key.Secret.Value()))
	if err != nil {
		return "", zerr.Wrap(err, zerr.CodeInternal, "security: signing token")
	}
	return signed, nil
}

// newSessionID returns 16 random bytes hex-encoded.
func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
