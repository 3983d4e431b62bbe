package security

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// LocalValidator verifies tokens this system issued itself: session
// tokens and API tokens signed with the owner's personal key.
//
// Recognition is by shape, before any signature check: the iss claim
// must equal [Issuer] and a userId claim must be present. Anything
// else is another validator's problem. Once a token is recognized,
// every failure is terminal; a missing signing key, a bad signature,
// and an expired token all reject the request outright.
type LocalValidator struct {
	keys     SigningKeyStore
	resolver ActorResolver
}

var _ CredentialValidator = (*LocalValidator)(nil)

// NewLocalValidator creates a LocalValidator over the given key store
// and actor resolver.
func NewLocalValidator(keys SigningKeyStore, resolver ActorResolver) *LocalValidator {
	return &LocalValidator{keys: keys, resolver: resolver}
}

// Kind implements CredentialValidator.
func (v *LocalValidator) Kind() ValidatorKind { return KindLocal }

// Validate implements CredentialValidator.
func (v *LocalValidator) Validate(ctx context.Context, token string) (*Validation, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil || unverified == nil {
		// Not even a JWT. Let the chain move on.
		return nil, zerr.UnknownIssuer("security: token is not a parseable JWT")
	}

	alg, _ := unverified.Header["alg"].(string)
	if strings.EqualFold(alg, "none") {
		return nil, zerr.InvalidCredential("security: algorithm 'none' is not permitted")
	}

	mc, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, zerr.UnknownIssuer("security: unable to extract claims")
	}
	issuer, _ := mc[ClaimIssuer].(string)
	userIDStr, _ := mc[ClaimUserID].(string)
	if issuer != Issuer || userIDStr == "" {
		return nil, zerr.UnknownIssuer("security: not a locally issued token")
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, zerr.InvalidCredential("security: userId claim is not a UUID")
	}

	// From here on the token is ours. Lookup failures reject rather
	// than fall through: a deleted key means every token it signed is
	// dead, and there is no backup secret to try.
	key, err := v.keys.Key(ctx, userID)
	if err != nil {
		return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: no signing key for token subject")
	}

	verified, err := jwt.ParseWithClaims(token, jwt.MapClaims{},
		func(t *jwt.Token) (any, error) {
			return []byte(key.Secret.Value()), nil
		},
		jwt.WithValidMethods([]string{"HS256", "HS512"}),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	claims, ok := verified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, zerr.InvalidCredential("security: unable to extract claims")
	}

	actor, err := v.resolver.ActorByID(ctx, userID)
	if err != nil {
		if zerr.IsNotFound(err) {
			return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
				"security: token subject does not exist")
		}
		return nil, err
	}

	if sessionID, _ := claims[ClaimSessionID].(string); sessionID != "" {
		actor = actor.WithAttr(AttrSessionID, sessionID)
	}
	return &Validation{Kind: KindLocal, Actor: actor}, nil
}

// classifyJWTError converts jwt library sentinel errors into typed
// rejections. Everything here is terminal for the chain.
func classifyJWTError(err error) *zerr.Error {
	if err == nil {
		return nil
	}
	var e *zerr.Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return zerr.Wrap(err, zerr.CodeAuthExpired, "security: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token is malformed")
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token is not yet valid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token is unverifiable")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token claims are invalid")
	default:
		return zerr.Wrap(err, zerr.CodeAuthInvalidCredential, "security: token validation failed")
	}
}
