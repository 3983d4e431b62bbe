package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// Legacy signed-request headers used by internal tooling that cannot
// carry a bearer token. The caller signs a fresh nonce with its own
// signing key on every request.
const (
	HeaderHmacUser = "X-Archivist-User"
	HeaderHmacData = "X-Archivist-Data"
	HeaderHmacSig  = "X-Archivist-Hmac"
)

// HmacVerifier authenticates legacy signed requests. The scheme is
// independent of the JWT and API-key paths but trusts the same
// per-user signing keys: delete the key and signed requests stop
// verifying along with every token.
type HmacVerifier struct {
	keys     SigningKeyStore
	resolver ActorResolver
}

// NewHmacVerifier creates an HmacVerifier.
func NewHmacVerifier(keys SigningKeyStore, resolver ActorResolver) *HmacVerifier {
	return &HmacVerifier{keys: keys, resolver: resolver}
}

// Verify checks the three signing headers and resolves the signing
// user's actor. All failures reject; there is no anonymous fallback.
func (v *HmacVerifier) Verify(ctx context.Context, userID, data, signature string) (*Actor, error) {
	if userID == "" || data == "" || signature == "" {
		return nil, zerr.InvalidCredential("security: signed request is missing headers")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, zerr.InvalidCredential("security: signed request user is not a UUID")
	}

	key, err := v.keys.Key(ctx, id)
	if err != nil {
		return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: no signing key for signed request user")
	}
	if !verifyHmacSHA1(key.Secret, data, signature) {
		return nil, zerr.InvalidCredential("security: request signature does not verify")
	}

	actor, err := v.resolver.ActorByID(ctx, id)
	if err != nil {
		if zerr.IsNotFound(err) {
			return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
				"security: signed request user does not exist")
		}
		return nil, err
	}
	return actor, nil
}

// VerifyRequest extracts the signing headers from an HTTP request.
func (v *HmacVerifier) VerifyRequest(r *http.Request) (*Actor, error) {
	return v.Verify(r.Context(),
		r.Header.Get(HeaderHmacUser),
		r.Header.Get(HeaderHmacData),
		r.Header.Get(HeaderHmacSig))
}

// verifyHmacSHA1 compares in constant time.
func verifyHmacSHA1(secret Secret, data, signature string) bool {
	mac := hmac.New(sha1.New, []byte(secret.Value()))
	mac.Write([]byte(data))
	expected := mac.Sum(nil)
	actual, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, actual)
}

// SigningRoundTripper signs every outgoing request with the legacy
// header scheme. It wraps an inner transport so internal tools can
// keep using a plain *http.Client.
type SigningRoundTripper struct {
	userID uuid.UUID
	secret Secret
	next   http.RoundTripper
}

var _ http.RoundTripper = (*SigningRoundTripper)(nil)

// NewSigningRoundTripper creates a transport that signs as the given
// user. If next is nil, [http.DefaultTransport] is used.
func NewSigningRoundTripper(userID uuid.UUID, secret Secret, next http.RoundTripper) *SigningRoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &SigningRoundTripper{userID: userID, secret: secret, next: next}
}

// RoundTrip implements http.RoundTripper. Each request gets a fresh
// nonce, so a captured signature cannot be replayed as a different
// payload.
func (t *SigningRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	nonce := uuid.NewString()
	mac := hmac.New(sha1.New, []byte(t.secret.Value()))
	mac.Write([]byte(nonce))

	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderHmacUser, t.userID.String())
	clone.Header.Set(HeaderHmacData, nonce)
	clone.Header.Set(HeaderHmacSig, hex.EncodeToString(mac.Sum(nil)))
	return t.next.RoundTrip(clone)
}
