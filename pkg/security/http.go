package security

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// Request headers and parameters understood by the middleware.
const (
	HeaderAuthorization = "Authorization"

	// HeaderProjectOverride asks the API-key path to act in a project
	// other than the key's own. Honored only for actors holding
	// [PermSystemProjectOverride].
	HeaderProjectOverride = "X-Archivist-Project-Id"

	// QueryToken lets browser-driven downloads present the credential
	// as a query parameter when headers are out of reach.
	QueryToken = "token"

	// QueryProjectOverride is the query form of the project override.
	QueryProjectOverride = "projectId"
)

// bearerPrefix is matched case-insensitively per RFC 7235.
const bearerPrefix = "bearer "

// Generic rejection bodies. Rejection detail stays in server logs;
// clients learn nothing about which validator said no, or why.
const (
	msgNotAuthorized = "Not Authorized"
	msgForbidden     = "Forbidden"
)

// ExtractBearerToken returns the token from an Authorization header
// value, or "" if the header is absent or not a bearer credential.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) > len(bearerPrefix) &&
		strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authHeader[len(bearerPrefix):])
	}
	return ""
}

// RequestToken extracts the credential from a request: the bearer
// header first, then the token query parameter.
func RequestToken(r *http.Request) string {
	if token := ExtractBearerToken(r.Header.Get(HeaderAuthorization)); token != "" {
		return token
	}
	return r.URL.Query().Get(QueryToken)
}

// projectOverride reads the project override from header or query.
// A malformed value is reported rather than ignored, so a caller who
// meant to override never silently runs in the wrong project.
func projectOverride(r *http.Request) (*uuid.UUID, error) {
	raw := r.Header.Get(HeaderProjectOverride)
	if raw == "" {
		raw = r.URL.Query().Get(QueryProjectOverride)
	}
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, zerr.Validationf("security: project override %q is not a UUID", raw)
	}
	return &id, nil
}

// UserMiddleware authenticates the interactive surface through the
// validator chain, with the legacy signed-header scheme as an
// alternative when no bearer token is present. hmacVerifier may be
// nil to disable the legacy scheme.
func UserMiddleware(validator *MasterValidator, hmacVerifier *HmacVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var actor *Actor
			var err error
			if token := RequestToken(r); token != "" {
				actor, err = validator.Validate(ctx, token)
			} else if hmacVerifier != nil && r.Header.Get(HeaderHmacUser) != "" {
				actor, err = hmacVerifier.VerifyRequest(r)
			} else {
				err = zerr.Unauthorized("security: request carries no credential")
			}
			if err != nil {
				rejectRequest(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
		})
	}
}

// APIKeyMiddleware authenticates the programmatic API surface through
// the auth server.
func APIKeyMiddleware(authorizer *APIKeyAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := RequestToken(r)
			if token == "" {
				rejectRequest(w, r, zerr.Unauthorized("security: request carries no credential"))
				return
			}
			override, err := projectOverride(r)
			if err != nil {
				rejectRequest(w, r, err)
				return
			}

			actor, err := authorizer.Authorize(ctx, token, override)
			if err != nil {
				rejectRequest(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
		})
	}
}

// AnalystMiddleware authenticates the cluster surface used by
// processing workers.
func AnalystMiddleware(authorizer *AnalystAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if token == "" {
				rejectRequest(w, r, zerr.Unauthorized("security: request carries no credential"))
				return
			}

			analyst, err := authorizer.Authorize(ctx, token, r.RemoteAddr)
			if err != nil {
				rejectRequest(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAnalyst(ctx, analyst)))
		})
	}
}

// MonitorMiddleware protects the monitoring surface with HTTP Basic
// auth against a single operator-configured credential pair. The
// health and info probes pass through unauthenticated so liveness
// checks need no secret. Successful auth yields an actor holding only
// [PermSystemMonitor] and no project scope.
func MonitorMiddleware(username string, password Secret) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicProbe(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeEqual(user, username) || !constantTimeEqual(pass, password.Value()) {
				w.Header().Set("WWW-Authenticate", `Basic realm="monitor"`)
				rejectRequest(w, r, zerr.Unauthorized("security: basic auth credentials do not match"))
				return
			}

			actor := NewActor(uuid.Nil, uuid.Nil, "monitor",
				[]Permission{PermSystemMonitor}, nil)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// isPublicProbe reports whether the monitoring path is one of the
// unauthenticated liveness probes.
func isPublicProbe(path string) bool {
	trimmed := strings.TrimSuffix(path, "/")
	return strings.HasSuffix(trimmed, "/health") || strings.HasSuffix(trimmed, "/info")
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// rejectRequest writes the generic rejection and logs the real reason
// server-side. Authorization failures are the one distinction clients
// get: a 403 tells a valid caller it lacks rights, everything else is
// an undifferentiated 401.
func rejectRequest(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnauthorized
	body := msgNotAuthorized
	if zerr.IsAuthorization(err) {
		status = http.StatusForbidden
		body = msgForbidden
	}

	slog.WarnContext(r.Context(), "request rejected",
		"error", err,
		"code", zerr.GetCode(err),
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
	)
	http.Error(w, body, status)
}
