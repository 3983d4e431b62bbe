package security

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// DefaultPermissionPrefix namespaces provider-granted roles so an
// external claim can never collide with a locally defined permission
// name. A provider role "librarian" becomes "zorroa::librarian".
const DefaultPermissionPrefix = "zorroa::"

// ProviderConfig describes one external identity provider the chain
// trusts. Exactly one of HMACSecret, RSAPublicKeyPEM,
// RSAPublicKeyFile, or JWKSURL must be set.
type ProviderConfig struct {
	// IssuerTag is the short stable name recorded on provisioned users
	// as part of the (externalSubjectId, issuerTag) identity. It never
	// changes once users exist, even if the provider's issuer URL does.
	IssuerTag string `yaml:"issuer_tag" env:"ISSUER_TAG"`

	// Issuer is the exact iss claim value this provider stamps.
	Issuer string `yaml:"issuer" env:"ISSUER"`

	// HMACSecret verifies HS256/HS512 tokens.
	HMACSecret Secret `yaml:"hmac_secret" env:"HMAC_SECRET"`

	// RSAPublicKeyPEM verifies RS256/RS512 tokens with a static key.
	RSAPublicKeyPEM string `yaml:"rsa_public_key_pem" env:"RSA_PUBLIC_KEY_PEM"`

	// RSAPublicKeyFile points at a PEM file on disk, as an alternative
	// to inlining the key.
	RSAPublicKeyFile string `yaml:"rsa_public_key_file" env:"RSA_PUBLIC_KEY_FILE"`

	// JWKSURL fetches provider keys dynamically, selected by kid.
	JWKSURL string `yaml:"jwks_url" env:"JWKS_URL"`

	// Claim field overrides. Empty values fall back to the standard
	// field names (sub, name, email, locale, organizationId,
	// permissions).
	SubjectField      string `yaml:"subject_field" env:"SUBJECT_FIELD"`
	NameField         string `yaml:"name_field" env:"NAME_FIELD"`
	EmailField        string `yaml:"email_field" env:"EMAIL_FIELD"`
	LocaleField       string `yaml:"locale_field" env:"LOCALE_FIELD"`
	OrganizationField string `yaml:"organization_field" env:"ORGANIZATION_FIELD"`
	PermissionsField  string `yaml:"permissions_field" env:"PERMISSIONS_FIELD"`

	// PermissionPrefix namespaces mapped roles; defaults to
	// [DefaultPermissionPrefix].
	PermissionPrefix string `yaml:"permission_prefix" env:"PERMISSION_PREFIX"`

	// PermissionMap translates provider role names to local permission
	// names before the prefix is applied. Roles absent from a non-empty
	// map are dropped rather than passed through.
	PermissionMap map[string]string `yaml:"permission_map" env:"-"`

	// ClockSkew is the tolerated clock difference when checking exp
	// and nbf.
	ClockSkew time.Duration `yaml:"clock_skew" env:"CLOCK_SKEW"`
}

// Validate checks the provider configuration for logical correctness.
func (c *ProviderConfig) Validate() error {
	if c.IssuerTag == "" {
		return zerr.Validation("security: provider issuer_tag must not be empty")
	}
	if c.Issuer == "" {
		return zerr.Validation("security: provider issuer must not be empty")
	}
	sources := 0
	if c.HMACSecret.Value() != "" {
		sources++
	}
	if c.RSAPublicKeyPEM != "" {
		sources++
	}
	if c.RSAPublicKeyFile != "" {
		sources++
	}
	if c.JWKSURL != "" {
		sources++
	}
	if sources != 1 {
		return zerr.Validationf(
			"security: provider %q must configure exactly one key source, got %d",
			c.IssuerTag, sources)
	}
	if c.ClockSkew < 0 {
		return zerr.Validation("security: provider clock skew must be non-negative")
	}
	return nil
}

func (c *ProviderConfig) subjectField() string {
	return fieldOr(c.SubjectField, ClaimSubject)
}

func fieldOr(field, fallback string) string {
	if field != "" {
		return field
	}
	return fallback
}

// ExternalValidator verifies tokens minted by one configured external
// identity provider. It claims a token when the iss claim matches the
// provider exactly; everything after that match is terminal.
//
// On success it returns normalized [Claims] carrying the external
// subject, the provider's [ProviderConfig.IssuerTag], profile fields,
// and the mapped permission names. The [Provisioner] turns those into
// a local actor; System* permissions are stripped during mapping, so
// an external provider can never grant administrative power here.
type ExternalValidator struct {
	config ProviderConfig
	rsaKey any
	jwks   *jwksCache
}

var _ CredentialValidator = (*ExternalValidator)(nil)

// NewExternalValidator creates an ExternalValidator for one provider.
// Static RSA keys are parsed eagerly so a bad key fails at startup,
// not on the first login.
func NewExternalValidator(cfg ProviderConfig, client HTTPClient) (*ExternalValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	v := &ExternalValidator{config: cfg}

	pemData := cfg.RSAPublicKeyPEM
	if cfg.RSAPublicKeyFile != "" {
		raw, err := os.ReadFile(cfg.RSAPublicKeyFile)
		if err != nil {
			return nil, zerr.Wrapf(err, zerr.CodeInternalConfiguration,
				"security: reading provider key file %s", cfg.RSAPublicKeyFile)
		}
		pemData = string(raw)
	}
	if pemData != "" {
		key, err := parseRSAPublicKeyPEM(pemData)
		if err != nil {
			return nil, err
		}
		v.rsaKey = key
	}
	if cfg.JWKSURL != "" {
		v.jwks = newJWKSCache(defaultJWKSCacheTTL, client)
	}
	return v, nil
}

// Kind implements CredentialValidator.
func (v *ExternalValidator) Kind() ValidatorKind { return KindExternal }

// Validate implements CredentialValidator.
func (v *ExternalValidator) Validate(ctx context.Context, token string) (*Validation, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil || unverified == nil {
		return nil, zerr.UnknownIssuer("security: token is not a parseable JWT")
	}
	mc, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, zerr.UnknownIssuer("security: unable to extract claims")
	}
	issuer, _ := mc[ClaimIssuer].(string)
	if issuer != v.config.Issuer {
		return nil, zerr.UnknownIssuer("security: token issuer does not match provider")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.validMethods()),
		jwt.WithIssuer(v.config.Issuer),
	}
	if v.config.ClockSkew > 0 {
		opts = append(opts, jwt.WithLeeway(v.config.ClockSkew))
	}
	verifyParser := jwt.NewParser(opts...)

	verified, err := verifyParser.ParseWithClaims(token, jwt.MapClaims{},
		func(t *jwt.Token) (any, error) { return v.keyFor(ctx, t) })
	if err != nil {
		return nil, classifyJWTError(err)
	}
	claims, ok := verified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, zerr.InvalidCredential("security: unable to extract claims")
	}

	normalized, err := v.normalize(Claims(claims))
	if err != nil {
		return nil, err
	}
	return &Validation{Kind: KindExternal, Claims: normalized}, nil
}

// validMethods returns the signing algorithms acceptable for the
// configured key source.
func (v *ExternalValidator) validMethods() []string {
	if v.config.HMACSecret.Value() != "" {
		return []string{"HS256", "HS512"}
	}
	if v.rsaKey != nil {
		return []string{"RS256", "RS512"}
	}
	return []string{"RS256", "RS512", "ES256", "ES384", "ES512"}
}

// keyFor resolves the verification key for a parsed token header.
func (v *ExternalValidator) keyFor(ctx context.Context, t *jwt.Token) (any, error) {
	if v.config.HMACSecret.Value() != "" {
		return []byte(v.config.HMACSecret.Value()), nil
	}
	if v.rsaKey != nil {
		return v.rsaKey, nil
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, zerr.InvalidCredential("security: token header has no kid for JWKS lookup")
	}
	key, err := v.jwks.getKey(ctx, v.config.JWKSURL, kid)
	if err != nil {
		// An unreachable provider rejects the credential. Falling
		// through to another validator here would let an outage
		// downgrade authentication.
		return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: unable to resolve provider key")
	}
	return key, nil
}

// normalize maps provider claims onto the well-known claim keys the
// provisioner consumes.
func (v *ExternalValidator) normalize(raw Claims) (Claims, error) {
	subject := raw.String(v.config.subjectField())
	if subject == "" {
		return nil, zerr.InvalidCredential("security: token carries no subject")
	}

	out := Claims{
		ClaimIssuer:    v.config.Issuer,
		ClaimIssuerTag: v.config.IssuerTag,
		ClaimSubject:   subject,
	}
	if name := raw.String(fieldOr(v.config.NameField, ClaimName)); name != "" {
		out[ClaimName] = name
	}
	if email := raw.String(fieldOr(v.config.EmailField, ClaimEmail)); email != "" {
		out[ClaimEmail] = email
	}
	if locale := raw.String(fieldOr(v.config.LocaleField, ClaimLocale)); locale != "" {
		out[ClaimLocale] = locale
	}
	if org := raw.String(fieldOr(v.config.OrganizationField, ClaimCompanyID)); org != "" {
		out[ClaimCompanyID] = org
	}

	roles := raw.StringSlice(fieldOr(v.config.PermissionsField, ClaimPermissions))
	if perms := v.mapPermissions(roles); len(perms) > 0 {
		out[ClaimPermissions] = perms
	}
	return out, nil
}

// mapPermissions translates provider roles into prefixed local
// permission names. System* names are dropped regardless of the map,
// keeping administrative grants strictly local.
func (v *ExternalValidator) mapPermissions(roles []string) []string {
	prefix := v.config.PermissionPrefix
	if prefix == "" {
		prefix = DefaultPermissionPrefix
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		name := role
		if len(v.config.PermissionMap) > 0 {
			mapped, ok := v.config.PermissionMap[role]
			if !ok {
				continue
			}
			name = mapped
		}
		if strings.HasPrefix(name, "System") {
			continue
		}
		out = append(out, prefix+name)
	}
	return out
}

// parseRSAPublicKeyPEM parses a PEM-encoded RSA public key, accepting
// both PKIX "PUBLIC KEY" and PKCS#1 "RSA PUBLIC KEY" blocks.
func parseRSAPublicKeyPEM(pemData string) (any, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, zerr.New(zerr.CodeInternalConfiguration,
			"security: provider key is not valid PEM")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, zerr.Wrap(err, zerr.CodeInternalConfiguration,
			"security: parsing provider public key")
	}
	return key, nil
}
