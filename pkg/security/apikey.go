package security

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// APIKeyActor is the principal the auth server resolves an API key
// token to, before it is turned into an [Actor].
type APIKeyActor struct {
	KeyID       uuid.UUID    `json:"id"`
	ProjectID   uuid.UUID    `json:"projectId"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// Actor converts the auth-server response into a request Actor.
func (a *APIKeyActor) Actor() *Actor {
	return NewActor(a.KeyID, a.ProjectID, a.Name, a.Permissions,
		map[string]string{AttrKeyID: a.KeyID.String()})
}

// APIKeySpec describes a key to create on the auth server.
type APIKeySpec struct {
	Name        string       `json:"name"`
	ProjectID   uuid.UUID    `json:"projectId"`
	Permissions []Permission `json:"permissions"`
}

// AuthServerClient is the remote service that owns API keys. This
// system never verifies API-key tokens itself; every check is a
// delegation.
type AuthServerClient interface {
	// Authenticate resolves an API-key token to its actor. The token
	// travels as the bearer credential.
	Authenticate(ctx context.Context, token string) (*APIKeyActor, error)

	// CreateAPIKey creates a key in the given project.
	CreateAPIKey(ctx context.Context, spec APIKeySpec) (*APIKeyActor, error)

	// GetAPIKey fetches a key by id.
	GetAPIKey(ctx context.Context, keyID uuid.UUID) (*APIKeyActor, error)

	// DeleteAPIKey revokes a key.
	DeleteAPIKey(ctx context.Context, keyID uuid.UUID) error
}

// ServiceKey is this service's own credential for calling the auth
// server. It is the same shape as any API key: a key id, a project
// scope, and a shared HMAC secret used to mint short-lived JWTs.
type ServiceKey struct {
	KeyID     uuid.UUID `json:"keyId"`
	ProjectID uuid.UUID `json:"projectId"`
	SharedKey Secret    `json:"sharedKey"`
}

// serviceTokenTTL bounds the lifetime of each minted request token.
const serviceTokenTTL = 60 * time.Second

// LoadServiceKey loads a service key from source, which is either a
// filesystem path or the base64-encoded JSON itself. Key material is
// handed around base64-encoded so it survives environment variables
// and secret stores that dislike raw JSON.
func LoadServiceKey(source string) (*ServiceKey, error) {
	if source == "" {
		return nil, zerr.New(zerr.CodeInternalConfiguration,
			"security: service key source must not be empty")
	}

	data := []byte(source)
	if _, err := os.Stat(source); err == nil {
		raw, err := os.ReadFile(source)
		if err != nil {
			return nil, zerr.Wrapf(err, zerr.CodeInternalConfiguration,
				"security: reading service key file %s", source)
		}
		data = raw
	}

	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data))); err == nil {
		data = decoded
	}

	var key ServiceKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, zerr.Wrap(err, zerr.CodeInternalConfiguration,
			"security: service key is not valid JSON")
	}
	if key.KeyID == uuid.Nil || key.SharedKey.Value() == "" {
		return nil, zerr.New(zerr.CodeInternalConfiguration,
			"security: service key is missing keyId or sharedKey")
	}
	return &key, nil
}

// MintToken signs a short-lived JWT identifying this service to the
// auth server.
func (k *ServiceKey) MintToken(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		ClaimIssuer: Issuer,
		"projectId": k.ProjectID.String(),
		"keyId":     k.KeyID.String(),
		"exp":       now.Add(serviceTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(k.SharedKey.Value()))
	if err != nil {
		return "", zerr.Wrap(err, zerr.CodeInternal, "security: signing service token")
	}
	return signed, nil
}

// HTTPAuthServerClient talks to the auth server over HTTP.
//
// There is deliberately no cache in front of Authenticate: a revoked
// key stops working on the next request, at the price of one upstream
// round trip per call.
type HTTPAuthServerClient struct {
	baseURL    string
	serviceKey *ServiceKey
	client     HTTPClient
	tracer     trace.Tracer
	now        func() time.Time
}

var _ AuthServerClient = (*HTTPAuthServerClient)(nil)

// AuthServerOption configures an HTTPAuthServerClient.
type AuthServerOption func(*HTTPAuthServerClient)

// WithAuthServerHTTPClient overrides the HTTP client.
func WithAuthServerHTTPClient(client HTTPClient) AuthServerOption {
	return func(c *HTTPAuthServerClient) { c.client = client }
}

// WithAuthServerClock overrides the clock used when minting service
// tokens. Used by tests.
func WithAuthServerClock(now func() time.Time) AuthServerOption {
	return func(c *HTTPAuthServerClient) { c.now = now }
}

// NewHTTPAuthServerClient creates a client for the auth server at
// baseURL. serviceKey signs this service's own calls (key management);
// it may be nil when only Authenticate is used.
func NewHTTPAuthServerClient(baseURL string, serviceKey *ServiceKey, opts ...AuthServerOption) *HTTPAuthServerClient {
	c := &HTTPAuthServerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultValidateTimeout}
	}
	return c
}

// Authenticate implements AuthServerClient. Upstream failures reject
// the credential; an auth-server outage never admits a request.
func (c *HTTPAuthServerClient) Authenticate(ctx context.Context, token string) (*APIKeyActor, error) {
	ctx, span := startSpan(ctx, c.tracer, "security.AuthServer.Authenticate")
	defer span.End()

	var actor APIKeyActor
	err := c.do(ctx, http.MethodGet, "/auth/v1/auth-token", token, nil, &actor)
	if err != nil {
		err = zerr.Wrap(err, zerr.CodeAuthInvalidCredential,
			"security: auth server rejected the key")
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("security.key_id", actor.KeyID.String()))
	return &actor, nil
}

// CreateAPIKey implements AuthServerClient.
func (c *HTTPAuthServerClient) CreateAPIKey(ctx context.Context, spec APIKeySpec) (*APIKeyActor, error) {
	token, err := c.serviceToken()
	if err != nil {
		return nil, err
	}
	var actor APIKeyActor
	if err := c.do(ctx, http.MethodPost, "/auth/v1/apikey", token, spec, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// GetAPIKey implements AuthServerClient.
func (c *HTTPAuthServerClient) GetAPIKey(ctx context.Context, keyID uuid.UUID) (*APIKeyActor, error) {
	token, err := c.serviceToken()
	if err != nil {
		return nil, err
	}
	var actor APIKeyActor
	if err := c.do(ctx, http.MethodGet, "/auth/v1/apikey/"+keyID.String(), token, nil, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// DeleteAPIKey implements AuthServerClient.
func (c *HTTPAuthServerClient) DeleteAPIKey(ctx context.Context, keyID uuid.UUID) error {
	token, err := c.serviceToken()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/auth/v1/apikey/"+keyID.String(), token, nil, nil)
}

func (c *HTTPAuthServerClient) serviceToken() (string, error) {
	if c.serviceKey == nil {
		return "", zerr.New(zerr.CodeInternalConfiguration,
			"security: no service key configured for auth server calls")
	}
	return c.serviceKey.MintToken(c.now())
}

// do executes one auth-server request with a bearer token and decodes
// the JSON response into out (when non-nil).
func (c *HTTPAuthServerClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return zerr.Wrap(err, zerr.CodeInternal, "security: encoding auth server request")
		}
		body = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return zerr.Wrap(err, zerr.CodeInternal, "security: creating auth server request")
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return zerr.Wrap(err, zerr.CodeUnavailableUpstream,
			"security: auth server unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return zerr.Newf(zerr.CodeAuthInvalidCredential,
			"security: auth server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return zerr.NotFoundf("security: auth server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zerr.Newf(zerr.CodeUnavailableUpstream,
			"security: auth server returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zerr.Wrap(err, zerr.CodeUnavailableUpstream,
			"security: reading auth server response")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return zerr.Wrap(err, zerr.CodeUnavailableUpstream,
			"security: auth server response is not valid JSON")
	}
	return nil
}

// ProjectGate answers whether a project is currently enabled.
// Disabled projects reject all ordinary traffic while keeping data
// intact.
type ProjectGate interface {
	Enabled(ctx context.Context, projectID uuid.UUID) (bool, error)
}

// APIKeyAuthorizer resolves API-key requests on the /api surface. It
// delegates the credential to the auth server, applies the optional
// project override, and enforces the project-enabled gate.
type APIKeyAuthorizer struct {
	authServer AuthServerClient
	projects   ProjectGate
	tracer     trace.Tracer
}

// NewAPIKeyAuthorizer creates an APIKeyAuthorizer.
func NewAPIKeyAuthorizer(authServer AuthServerClient, projects ProjectGate) *APIKeyAuthorizer {
	return &APIKeyAuthorizer{
		authServer: authServer,
		projects:   projects,
		tracer:     otel.Tracer(tracerName),
	}
}

// Authorize resolves token to an Actor. A non-nil projectOverride asks
// to act in that project instead of the key's own; only actors holding
// [PermSystemProjectOverride] may do so, and an unauthorized attempt
// fails the request rather than silently using the key's project.
// The project-enabled gate applies to the effective project unless the
// actor holds [PermSystemServiceKey].
func (a *APIKeyAuthorizer) Authorize(ctx context.Context, token string, projectOverride *uuid.UUID) (*Actor, error) {
	ctx, span := startSpan(ctx, a.tracer, "security.AuthorizeAPIKey")
	defer span.End()

	keyActor, err := a.authServer.Authenticate(ctx, token)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	actor := keyActor.Actor()

	if projectOverride != nil && *projectOverride != actor.ProjectID() {
		if !actor.HasPermission(PermSystemProjectOverride) {
			err := zerr.Forbidden("security: actor may not override its project scope")
			finishSpan(span, err)
			return nil, err
		}
		actor = actor.WithProject(*projectOverride)
	}

	if !actor.HasPermission(PermSystemServiceKey) {
		enabled, err := a.projects.Enabled(ctx, actor.ProjectID())
		if err != nil {
			finishSpan(span, err)
			return nil, err
		}
		if !enabled {
			err := zerr.Newf(zerr.CodeAuthzProjectDisabled,
				"security: project %s is not enabled", actor.ProjectID())
			finishSpan(span, err)
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.String("security.actor_id", actor.ID().String()),
		attribute.String("security.project_id", actor.ProjectID().String()),
	)
	return actor, nil
}
