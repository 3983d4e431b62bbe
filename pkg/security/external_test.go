package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zorroa/archivist-core/internal/testutil"
	"github.com/zorroa/archivist-core/internal/testutil/fixtures"
	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

func hmacProvider() ProviderConfig {
	return ProviderConfig{
		IssuerTag:  fixtures.ExternalIssuerTag,
		Issuer:     fixtures.ExternalIssuer,
		HMACSecret: Secret(fixtures.SharedSecret),
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		cfg := hmacProvider()
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing issuer tag", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.IssuerTag = ""
		testutil.RequireErrorCode(t, cfg.Validate(), zerr.CodeValidation)
	})

	t.Run("missing issuer", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.Issuer = ""
		testutil.RequireErrorCode(t, cfg.Validate(), zerr.CodeValidation)
	})

	t.Run("no key source", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.HMACSecret = ""
		testutil.RequireErrorCode(t, cfg.Validate(), zerr.CodeValidation)
	})

	t.Run("two key sources", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.JWKSURL = "https://idp.example.com/jwks"
		testutil.RequireErrorCode(t, cfg.Validate(), zerr.CodeValidation)
	})

	t.Run("negative clock skew", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.ClockSkew = -time.Second
		testutil.RequireErrorCode(t, cfg.Validate(), zerr.CodeValidation)
	})
}

func TestExternalValidator_HMAC(t *testing.T) {
	t.Parallel()
	v, err := NewExternalValidator(hmacProvider(), nil)
	require.NoError(t, err)

	token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
		ClaimIssuer:      fixtures.ExternalIssuer,
		ClaimSubject:     fixtures.ExternalSubject,
		ClaimName:        "Alice Example",
		ClaimEmail:       "alice@example.com",
		ClaimLocale:      "en_US",
		ClaimPermissions: []string{"librarian"},
		"exp":            time.Now().Add(time.Hour).Unix(),
	})

	result, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, KindExternal, result.Kind)
	assert.Nil(t, result.Actor)

	claims := result.Claims
	assert.Equal(t, fixtures.ExternalIssuer, claims.String(ClaimIssuer))
	assert.Equal(t, fixtures.ExternalIssuerTag, claims.String(ClaimIssuerTag))
	assert.Equal(t, fixtures.ExternalSubject, claims.String(ClaimSubject))
	assert.Equal(t, "Alice Example", claims.String(ClaimName))
	assert.Equal(t, "alice@example.com", claims.String(ClaimEmail))
	assert.Equal(t, []string{"zorroa::librarian"}, claims.StringSlice(ClaimPermissions))
}

func TestExternalValidator_IssuerMismatchFallsThrough(t *testing.T) {
	t.Parallel()
	v, err := NewExternalValidator(hmacProvider(), nil)
	require.NoError(t, err)

	token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
		ClaimIssuer:  "https://other-idp.example.com",
		ClaimSubject: fixtures.ExternalSubject,
	})

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthUnknownIssuer)
}

func TestExternalValidator_Expired(t *testing.T) {
	t.Parallel()
	v, err := NewExternalValidator(hmacProvider(), nil)
	require.NoError(t, err)

	token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
		"exp":        time.Now().Add(-time.Hour).Unix(),
	})

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthExpired)
}

func TestExternalValidator_ClockSkewTolerance(t *testing.T) {
	t.Parallel()
	cfg := hmacProvider()
	cfg.ClockSkew = 5 * time.Minute
	v, err := NewExternalValidator(cfg, nil)
	require.NoError(t, err)

	token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
		"exp":        time.Now().Add(-time.Minute).Unix(),
	})

	_, err = v.Validate(context.Background(), token)
	require.NoError(t, err)
}

func TestExternalValidator_WrongSecret(t *testing.T) {
	t.Parallel()
	v, err := NewExternalValidator(hmacProvider(), nil)
	require.NoError(t, err)

	token := signHS512(t, Secret("wrong-secret-wrong-secret-wrong-sec"), jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
	})

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestExternalValidator_MissingSubject(t *testing.T) {
	t.Parallel()
	v, err := NewExternalValidator(hmacProvider(), nil)
	require.NoError(t, err)

	token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
		ClaimIssuer: fixtures.ExternalIssuer,
	})

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestExternalValidator_CustomClaimFields(t *testing.T) {
	t.Parallel()
	cfg := hmacProvider()
	cfg.SubjectField = "preferred_username"
	cfg.EmailField = "mail"
	v, err := NewExternalValidator(cfg, nil)
	require.NoError(t, err)

	token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
		ClaimIssuer:          fixtures.ExternalIssuer,
		"preferred_username": fixtures.ExternalSubject,
		"mail":               "alice@example.com",
	})

	result, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ExternalSubject, result.Claims.String(ClaimSubject))
	assert.Equal(t, "alice@example.com", result.Claims.String(ClaimEmail))
}

func TestExternalValidator_PermissionMapping(t *testing.T) {
	t.Parallel()

	t.Run("map drops unmapped roles", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.PermissionMap = map[string]string{"librarian": "AssetsRead"}
		v, err := NewExternalValidator(cfg, nil)
		require.NoError(t, err)

		token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
			ClaimIssuer:      fixtures.ExternalIssuer,
			ClaimSubject:     fixtures.ExternalSubject,
			ClaimPermissions: []string{"librarian", "janitor"},
		})

		result, err := v.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, []string{"zorroa::AssetsRead"},
			result.Claims.StringSlice(ClaimPermissions))
	})

	t.Run("system roles always dropped", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.PermissionMap = map[string]string{"admin": "SystemManage"}
		v, err := NewExternalValidator(cfg, nil)
		require.NoError(t, err)

		token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
			ClaimIssuer:      fixtures.ExternalIssuer,
			ClaimSubject:     fixtures.ExternalSubject,
			ClaimPermissions: []string{"admin", "SystemMonitor"},
		})

		result, err := v.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Empty(t, result.Claims.StringSlice(ClaimPermissions))
	})

	t.Run("custom prefix", func(t *testing.T) {
		cfg := hmacProvider()
		cfg.PermissionPrefix = "ext::"
		v, err := NewExternalValidator(cfg, nil)
		require.NoError(t, err)

		token := signHS512(t, Secret(fixtures.SharedSecret), jwt.MapClaims{
			ClaimIssuer:      fixtures.ExternalIssuer,
			ClaimSubject:     fixtures.ExternalSubject,
			ClaimPermissions: []string{"librarian"},
		})

		result, err := v.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, []string{"ext::librarian"},
			result.Claims.StringSlice(ClaimPermissions))
	})
}

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func rsaPublicPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestExternalValidator_StaticRSAKey(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	cfg := ProviderConfig{
		IssuerTag:       fixtures.ExternalIssuerTag,
		Issuer:          fixtures.ExternalIssuer,
		RSAPublicKeyPEM: rsaPublicPEM(t, key),
	}
	v, err := NewExternalValidator(cfg, nil)
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}, nil)

	result, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ExternalSubject, result.Claims.String(ClaimSubject))
}

func TestExternalValidator_RSAKeyFromFile(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	path := filepath.Join(t.TempDir(), "provider.pem")
	require.NoError(t, os.WriteFile(path, []byte(rsaPublicPEM(t, key)), 0o600))

	cfg := ProviderConfig{
		IssuerTag:        fixtures.ExternalIssuerTag,
		Issuer:           fixtures.ExternalIssuer,
		RSAPublicKeyFile: path,
	}
	v, err := NewExternalValidator(cfg, nil)
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
	}, nil)

	_, err = v.Validate(context.Background(), token)
	require.NoError(t, err)
}

func TestNewExternalValidator_BadPEM(t *testing.T) {
	t.Parallel()
	cfg := ProviderConfig{
		IssuerTag:       fixtures.ExternalIssuerTag,
		Issuer:          fixtures.ExternalIssuer,
		RSAPublicKeyPEM: "not a pem block",
	}
	_, err := NewExternalValidator(cfg, nil)
	testutil.RequireErrorCode(t, err, zerr.CodeInternalConfiguration)
}

func TestNewExternalValidator_MissingKeyFile(t *testing.T) {
	t.Parallel()
	cfg := ProviderConfig{
		IssuerTag:        fixtures.ExternalIssuerTag,
		Issuer:           fixtures.ExternalIssuer,
		RSAPublicKeyFile: filepath.Join(t.TempDir(), "absent.pem"),
	}
	_, err := NewExternalValidator(cfg, nil)
	testutil.RequireErrorCode(t, err, zerr.CodeInternalConfiguration)
}

// TestExternalValidator_HMACRejectsRSAAlg verifies the configured key
// source pins the acceptable algorithms: an RS256 token cannot be
// replayed against an HMAC provider, and vice versa.
func TestExternalValidator_HMACRejectsRSAAlg(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	v, err := NewExternalValidator(hmacProvider(), nil)
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
	}, nil)

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func serveJWKS(t *testing.T, key *rsa.PrivateKey, kid string, fetches *atomic.Int64) *httptest.Server {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches != nil {
			fetches.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExternalValidator_JWKS(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	var fetches atomic.Int64
	srv := serveJWKS(t, key, "key-1", &fetches)

	cfg := ProviderConfig{
		IssuerTag: fixtures.ExternalIssuerTag,
		Issuer:    fixtures.ExternalIssuer,
		JWKSURL:   srv.URL,
	}
	v, err := NewExternalValidator(cfg, srv.Client())
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}, map[string]any{"kid": "key-1"})

	result, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ExternalSubject, result.Claims.String(ClaimSubject))

	// Second validation reuses the cached key set.
	_, err = v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestExternalValidator_JWKSMissingKid(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	srv := serveJWKS(t, key, "key-1", nil)

	cfg := ProviderConfig{
		IssuerTag: fixtures.ExternalIssuerTag,
		Issuer:    fixtures.ExternalIssuer,
		JWKSURL:   srv.URL,
	}
	v, err := NewExternalValidator(cfg, srv.Client())
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
	}, nil)

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestExternalValidator_JWKSUnknownKid(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	srv := serveJWKS(t, key, "key-1", nil)

	cfg := ProviderConfig{
		IssuerTag: fixtures.ExternalIssuerTag,
		Issuer:    fixtures.ExternalIssuer,
		JWKSURL:   srv.URL,
	}
	v, err := NewExternalValidator(cfg, srv.Client())
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
	}, map[string]any{"kid": "rotated-away"})

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

// TestExternalValidator_JWKSFetchFailure proves a provider outage
// rejects the credential rather than authenticating or falling
// through.
func TestExternalValidator_JWKSFetchFailure(t *testing.T) {
	t.Parallel()
	key := generateRSAKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := ProviderConfig{
		IssuerTag: fixtures.ExternalIssuerTag,
		Issuer:    fixtures.ExternalIssuer,
		JWKSURL:   srv.URL,
	}
	v, err := NewExternalValidator(cfg, srv.Client())
	require.NoError(t, err)

	token := signWith(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		ClaimIssuer:  fixtures.ExternalIssuer,
		ClaimSubject: fixtures.ExternalSubject,
	}, map[string]any{"kid": "key-1"})

	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}
