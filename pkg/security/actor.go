// Package security implements request authentication for the Archivist
// backend: the pluggable credential validator chain that turns a bearer
// token into a project-scoped [Actor], the token issuer that mints
// session and API tokens with per-user signing keys, and the three
// independent authorization paths an inbound request may take (user
// JWT chain, API-key delegation, analyst worker trust).
//
// Trust domains:
//
//   - Locally issued JWTs (sessions and long-lived API tokens) are
//     verified against the owning user's [SigningKey] by
//     [LocalValidator].
//   - JWTs from external identity providers are verified against
//     provider keys by [ExternalValidator] and just-in-time provisioned
//     into local users through a [Provisioner].
//   - Opaque API keys are delegated to the auth server by
//     [APIKeyAuthorizer].
//   - Worker ("analyst") tokens are verified against one shared secret
//     by [AnalystAuthorizer] and yield an endpoint-based
//     [AnalystIdentity], never a user.
//
// The resolved principal travels on the request context (see
// [WithActor] and [Capture]); there is no global security context
// holder. Background work that must act as a project without a human
// request uses [BackgroundActor], a distinct code path from every
// validator.
package security

import (
	"sort"

	"github.com/google/uuid"
)

// Permission is an opaque capability name carried by an Actor.
// Authorization is a set-membership test; there is no hierarchy and
// no wildcard. Externally mapped permissions are namespaced with the
// provider prefix (e.g. "zorroa::librarian").
type Permission string

// Attribute keys an actor may carry.
const (
	// AttrSessionID is set when the actor was resolved from a session
	// token; API tokens and synthetic actors never carry it.
	AttrSessionID = "sessionId"

	// AttrKeyID is set when the actor was resolved from an API key.
	AttrKeyID = "keyId"
)

// Well-known permission names. The System* permissions are never
// granted to external subjects by claim mapping.
const (
	// PermAssetsRead grants read access to project assets.
	PermAssetsRead Permission = "AssetsRead"

	// PermAssetsImport grants asset import and reprocessing.
	PermAssetsImport Permission = "AssetsImport"

	// PermJobsRead grants read access to processing jobs.
	PermJobsRead Permission = "JobsRead"

	// PermJobsManage grants job creation, retry, and cancellation.
	PermJobsManage Permission = "JobsManage"

	// PermProjectManage grants project-level administration.
	PermProjectManage Permission = "ProjectManage"

	// PermSystemProjectOverride allows an actor to act in a project
	// other than the one its credential is scoped to.
	PermSystemProjectOverride Permission = "SystemProjectOverride"

	// PermSystemServiceKey marks service credentials that bypass the
	// project-enabled check (cross-tenant maintenance).
	PermSystemServiceKey Permission = "SystemServiceKey"

	// PermSystemMonitor grants access to the monitoring endpoints.
	PermSystemMonitor Permission = "SystemMonitor"

	// PermSystemManage grants full administrative access.
	PermSystemManage Permission = "SystemManage"
)

// Well-known identities.
var (
	// ProjectZeroID is the project scope of the inception actor. It is
	// not a real tenant; operations under project zero are cross-tenant
	// administrative operations.
	ProjectZeroID = uuid.Nil

	// InceptionActorID is the fixed id of the system actor created from
	// the inception service key.
	InceptionActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	// BackgroundActorID is the fixed id used by every synthetic
	// background-thread actor, regardless of project.
	BackgroundActorID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// Actor is the resolved principal of a request: who is calling, in
// which project, with which permissions. Actors are immutable once
// constructed and scoped to a single request (or to background work
// explicitly spawned from one).
type Actor struct {
	id          uuid.UUID
	projectID   uuid.UUID
	name        string
	permissions map[Permission]struct{}
	attrs       map[string]string
}

// NewActor creates an immutable Actor. The permission slice and attr
// map are copied; callers may reuse them afterward.
func NewActor(id, projectID uuid.UUID, name string, perms []Permission, attrs map[string]string) *Actor {
	pset := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		pset[p] = struct{}{}
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &Actor{
		id:          id,
		projectID:   projectID,
		name:        name,
		permissions: pset,
		attrs:       copied,
	}
}

// InceptionActor returns the project-zero system actor used for
// cross-tenant administrative operations. It carries the full system
// permission set.
func InceptionActor() *Actor {
	return NewActor(InceptionActorID, ProjectZeroID, "inception",
		[]Permission{
			PermSystemManage,
			PermSystemProjectOverride,
			PermSystemServiceKey,
			PermSystemMonitor,
		}, nil)
}

// BackgroundActor returns the synthetic actor used when server-side
// code must act as a project without a human or API key present, e.g.
// event-driven maintenance tasks. The permission set must be supplied
// explicitly by the caller; there is no default grant.
//
// This is a named constructor on purpose: background identity is a
// distinct code path, not a token handled by the validators.
func BackgroundActor(projectID uuid.UUID, perms []Permission) *Actor {
	return NewActor(BackgroundActorID, projectID, "background", perms, nil)
}

// ID returns the actor's unique id. For users this is the user id;
// for API keys the key id; for synthetic actors a well-known id.
func (a *Actor) ID() uuid.UUID { return a.id }

// ProjectID returns the tenant the actor is scoped to.
func (a *Actor) ProjectID() uuid.UUID { return a.projectID }

// Name returns the display name of the actor.
func (a *Actor) Name() string { return a.name }

// HasPermission reports whether the actor carries the permission.
func (a *Actor) HasPermission(p Permission) bool {
	_, ok := a.permissions[p]
	return ok
}

// HasAnyPermission reports whether the actor carries at least one of
// the given permissions.
func (a *Actor) HasAnyPermission(perms ...Permission) bool {
	for _, p := range perms {
		if a.HasPermission(p) {
			return true
		}
	}
	return false
}

// Permissions returns a sorted copy of the actor's permission set.
func (a *Actor) Permissions() []Permission {
	out := make([]Permission, 0, len(a.permissions))
	for p := range a.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attr returns a single attribute value.
func (a *Actor) Attr(key string) (string, bool) {
	v, ok := a.attrs[key]
	return v, ok
}

// Attrs returns a copy of the actor's attributes.
func (a *Actor) Attrs() map[string]string {
	copied := make(map[string]string, len(a.attrs))
	for k, v := range a.attrs {
		copied[k] = v
	}
	return copied
}

// WithProject returns a copy of the actor scoped to a different
// project. Used by the API-key path when honoring a project override;
// the permission set and attrs are unchanged.
func (a *Actor) WithProject(projectID uuid.UUID) *Actor {
	clone := &Actor{
		id:          a.id,
		projectID:   projectID,
		name:        a.name,
		permissions: a.permissions,
		attrs:       a.attrs,
	}
	return clone
}

// WithAttr returns a copy of the actor with one attribute added or
// replaced.
func (a *Actor) WithAttr(key, value string) *Actor {
	attrs := a.Attrs()
	attrs[key] = value
	clone := &Actor{
		id:          a.id,
		projectID:   a.projectID,
		name:        a.name,
		permissions: a.permissions,
		attrs:       attrs,
	}
	return clone
}

// IsSynthetic reports whether the actor is one of the two well-known
// system identities rather than a real user or API key.
func (a *Actor) IsSynthetic() bool {
	return a.id == InceptionActorID || a.id == BackgroundActorID
}
