package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zorroa/archivist-core/internal/testutil"
	"github.com/zorroa/archivist-core/internal/testutil/fixtures"
	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

func signData(secret Secret, data string) string {
	mac := hmac.New(sha1.New, []byte(secret.Value()))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacFixture(t *testing.T) (*HmacVerifier, uuid.UUID, Secret) {
	t.Helper()
	userID := uuid.MustParse(fixtures.UserID)
	secret := Secret(fixtures.SharedSecret)
	keys := NewStaticKeyStore(map[uuid.UUID]Secret{userID: secret})
	resolver := &stubResolver{actors: map[uuid.UUID]*Actor{
		userID: NewActor(userID, uuid.MustParse(fixtures.ProjectID),
			fixtures.UserName, nil, nil),
	}}
	return NewHmacVerifier(keys, resolver), userID, secret
}

func TestHmacVerifier_Verify(t *testing.T) {
	t.Parallel()
	v, userID, secret := hmacFixture(t)
	data := uuid.NewString()

	actor, err := v.Verify(context.Background(), userID.String(), data, signData(secret, data))
	require.NoError(t, err)
	assert.Equal(t, userID, actor.ID())
}

func TestHmacVerifier_MissingHeaders(t *testing.T) {
	t.Parallel()
	v, userID, secret := hmacFixture(t)
	data := uuid.NewString()
	sig := signData(secret, data)

	for name, args := range map[string][3]string{
		"no user":      {"", data, sig},
		"no data":      {userID.String(), "", sig},
		"no signature": {userID.String(), data, ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), args[0], args[1], args[2])
			testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
		})
	}
}

func TestHmacVerifier_BadUserID(t *testing.T) {
	t.Parallel()
	v, _, secret := hmacFixture(t)
	data := uuid.NewString()

	_, err := v.Verify(context.Background(), "not-a-uuid", data, signData(secret, data))
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestHmacVerifier_UnknownUser(t *testing.T) {
	t.Parallel()
	v, _, secret := hmacFixture(t)
	data := uuid.NewString()

	_, err := v.Verify(context.Background(), uuid.NewString(), data, signData(secret, data))
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestHmacVerifier_BadSignature(t *testing.T) {
	t.Parallel()
	v, userID, _ := hmacFixture(t)
	data := uuid.NewString()

	_, err := v.Verify(context.Background(), userID.String(), data,
		signData(Secret("some-other-secret"), data))
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestHmacVerifier_SignatureNotHex(t *testing.T) {
	t.Parallel()
	v, userID, _ := hmacFixture(t)

	_, err := v.Verify(context.Background(), userID.String(), uuid.NewString(), "zzzz not hex")
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

// TestHmacVerifier_TamperedData proves the signature binds the data
// header: changing either one rejects.
func TestHmacVerifier_TamperedData(t *testing.T) {
	t.Parallel()
	v, userID, secret := hmacFixture(t)

	_, err := v.Verify(context.Background(), userID.String(),
		"tampered", signData(secret, "original"))
	testutil.RequireErrorCode(t, err, zerr.CodeAuthInvalidCredential)
}

func TestHmacVerifier_VerifyRequest(t *testing.T) {
	t.Parallel()
	v, userID, secret := hmacFixture(t)
	data := uuid.NewString()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	r.Header.Set(HeaderHmacUser, userID.String())
	r.Header.Set(HeaderHmacData, data)
	r.Header.Set(HeaderHmacSig, signData(secret, data))

	actor, err := v.VerifyRequest(r)
	require.NoError(t, err)
	assert.Equal(t, userID, actor.ID())
}

type captureTransport struct {
	req *http.Request
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

// TestSigningRoundTripper_Verifies signs a request and runs the
// result through the verifier.
func TestSigningRoundTripper_Verifies(t *testing.T) {
	t.Parallel()
	v, userID, secret := hmacFixture(t)
	inner := &captureTransport{}
	client := &http.Client{Transport: NewSigningRoundTripper(userID, secret, inner)}

	resp, err := client.Get("http://archivist.internal/api/v1/assets")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.NotNil(t, inner.req)
	actor, err := v.VerifyRequest(inner.req)
	require.NoError(t, err)
	assert.Equal(t, userID, actor.ID())
}

// TestSigningRoundTripper_FreshNonce checks each request carries a new
// nonce so signatures are not replayable across requests.
func TestSigningRoundTripper_FreshNonce(t *testing.T) {
	t.Parallel()
	_, userID, secret := hmacFixture(t)
	inner := &captureTransport{}
	client := &http.Client{Transport: NewSigningRoundTripper(userID, secret, inner)}

	resp, err := client.Get("http://archivist.internal/one")
	require.NoError(t, err)
	_ = resp.Body.Close()
	first := inner.req.Header.Get(HeaderHmacData)

	resp, err = client.Get("http://archivist.internal/two")
	require.NoError(t, err)
	_ = resp.Body.Close()
	second := inner.req.Header.Get(HeaderHmacData)

	assert.NotEqual(t, first, second)
}

func TestSigningRoundTripper_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()
	inner := &captureTransport{}
	rt := NewSigningRoundTripper(uuid.New(), Secret(fixtures.SharedSecret), inner)

	req := httptest.NewRequest(http.MethodGet, "http://archivist.internal/", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, req.Header.Get(HeaderHmacSig))
	assert.NotEmpty(t, inner.req.Header.Get(HeaderHmacSig))
}
