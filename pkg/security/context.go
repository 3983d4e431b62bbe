package security

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type for context values, preventing
// collisions with keys from other packages.
type contextKey int

const (
	actorKey contextKey = iota
	analystKey
)

// WithActor returns a context carrying the actor. The actor travels
// with the request through the whole call graph; there is no global
// holder to fall back on.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor on the context, or nil and false
// if none is installed.
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorKey).(*Actor)
	if !ok || actor == nil {
		return nil, false
	}
	return actor, true
}

// MustActorFromContext returns the actor on the context and panics if
// none is installed. Use only on paths that run strictly behind an
// authentication middleware.
func MustActorFromContext(ctx context.Context) *Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		panic("security: no actor in context")
	}
	return actor
}

// WithAnalyst returns a context carrying a worker identity.
func WithAnalyst(ctx context.Context, analyst *AnalystIdentity) context.Context {
	return context.WithValue(ctx, analystKey, analyst)
}

// AnalystFromContext returns the worker identity on the context, or
// nil and false if none is installed.
func AnalystFromContext(ctx context.Context) (*AnalystIdentity, bool) {
	analyst, ok := ctx.Value(analystKey).(*AnalystIdentity)
	if !ok || analyst == nil {
		return nil, false
	}
	return analyst, true
}

// RunAs runs body with the given actor installed on the context. The
// caller's own context is untouched, so the previous principal is in
// effect again as soon as RunAs returns, error or not.
func RunAs(ctx context.Context, actor *Actor, body func(context.Context) error) error {
	return body(WithActor(ctx, actor))
}

// Capture snapshots the current principal for fan-out. Background
// tasks spawned from a request do not inherit the actor through their
// own fresh contexts; the spawning code captures at submit time and
// reapplies on the worker:
//
//	reinstall := security.Capture(ctx)
//	go func() {
//		ctx := reinstall(context.Background())
//		...
//	}()
func Capture(ctx context.Context) func(context.Context) context.Context {
	actor, hasActor := ActorFromContext(ctx)
	analyst, hasAnalyst := AnalystFromContext(ctx)
	return func(target context.Context) context.Context {
		if hasActor {
			target = WithActor(target, actor)
		}
		if hasAnalyst {
			target = WithAnalyst(target, analyst)
		}
		return target
	}
}

// BackgroundContext returns a context carrying a synthetic
// background-thread actor for the project, with an explicitly chosen
// permission set. This is how event-driven maintenance acts as a
// project with no human request in sight.
func BackgroundContext(ctx context.Context, projectID uuid.UUID, perms []Permission) context.Context {
	return WithActor(ctx, BackgroundActor(projectID, perms))
}
