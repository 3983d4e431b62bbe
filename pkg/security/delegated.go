package security

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// DefaultValidateTimeout bounds each delegated validation call.
// There are no retries.
const DefaultValidateTimeout = 5 * time.Second

// HTTPValidator delegates credential checks to a remote validation
// endpoint: the bearer token is forwarded as-is and the endpoint's
// JSON response body becomes the claim set. Used when token formats
// are opaque to this system or validation requires state only the
// remote side has.
//
// Any failure to get a positive answer rejects the credential: non-2xx
// status, network error, timeout, or an unparsable body. The remote
// endpoint being down never lets a request through.
type HTTPValidator struct {
	validateURL string
	client      HTTPClient
	timeout     time.Duration
}

var _ CredentialValidator = (*HTTPValidator)(nil)

// HTTPValidatorOption configures an HTTPValidator.
type HTTPValidatorOption func(*HTTPValidator)

// WithValidateTimeout overrides the per-call timeout.
func WithValidateTimeout(d time.Duration) HTTPValidatorOption {
	return func(v *HTTPValidator) { v.timeout = d }
}

// WithValidateClient overrides the HTTP client.
func WithValidateClient(client HTTPClient) HTTPValidatorOption {
	return func(v *HTTPValidator) { v.client = client }
}

// NewHTTPValidator creates an HTTPValidator posting to validateURL.
func NewHTTPValidator(validateURL string, opts ...HTTPValidatorOption) *HTTPValidator {
	v := &HTTPValidator{
		validateURL: validateURL,
		timeout:     DefaultValidateTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.client == nil {
		v.client = &http.Client{Timeout: v.timeout}
	}
	return v
}

// Kind implements CredentialValidator.
func (v *HTTPValidator) Kind() ValidatorKind { return KindDelegated }

// Validate implements CredentialValidator. The returned claims must
// carry a userId field; the remote endpoint decides everything else.
func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.validateURL, nil)
	if err != nil {
		return nil, zerr.Wrap(err, zerr.CodeInternal, "security: creating validate request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: validation endpoint unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, zerr.Newf(zerr.CodeAuthInvalidCredential,
			"security: validation endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: reading validation response")
	}

	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: validation response is not valid JSON")
	}
	if claims.String(ClaimUserID) == "" {
		return nil, zerr.InvalidCredential(
			"security: validation response carries no userId")
	}
	return &Validation{Kind: KindDelegated, Claims: claims}, nil
}
