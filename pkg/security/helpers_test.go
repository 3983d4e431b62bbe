package security

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// signHS512 signs a token with the given HMAC secret. Most validator
// tests build their inputs through this.
func signHS512(t *testing.T, secret Secret, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret.Value()))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// signWith signs a token with an arbitrary method and key, for
// algorithm-confusion and RSA tests.
func signWith(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims, header map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	for k, v := range header {
		token.Header[k] = v
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}
