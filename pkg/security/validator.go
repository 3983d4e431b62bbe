package security

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// ValidatorKind identifies which trust path accepted a credential.
type ValidatorKind string

const (
	// KindLocal identifies tokens this system issued itself, verified
	// against per-user signing keys.
	KindLocal ValidatorKind = "local"

	// KindExternal identifies tokens from a configured external
	// identity provider, verified with its static key or JWKS.
	KindExternal ValidatorKind = "external"

	// KindDelegated identifies tokens accepted by a remote validation
	// endpoint this system forwards the credential to.
	KindDelegated ValidatorKind = "delegated"
)

// Validation is the outcome of a successful credential check. Exactly
// one of Actor or Claims is populated: the local path resolves the
// actor directly, while external and delegated paths return the
// normalized claims for provisioning.
type Validation struct {
	Kind   ValidatorKind
	Actor  *Actor
	Claims Claims
}

// CredentialValidator checks one class of credential. Validate returns
// an error carrying [zerr.CodeAuthUnknownIssuer] when the token does
// not belong to this validator at all, and any other error when the
// token was recognized and rejected.
type CredentialValidator interface {
	Kind() ValidatorKind
	Validate(ctx context.Context, token string) (*Validation, error)
}

// Provisioner turns normalized external claims into a local actor,
// creating or refreshing the backing user record as needed. It must be
// idempotent and safe under concurrent logins for the same subject.
type Provisioner interface {
	Provision(ctx context.Context, claims Claims) (*Actor, error)
}

// ActorResolver loads the actor for a locally known user id.
type ActorResolver interface {
	ActorByID(ctx context.Context, id uuid.UUID) (*Actor, error)
}

// maxTokenSize is the maximum accepted size for a token string (8 KB).
// Larger inputs are rejected before any parsing.
const maxTokenSize = 8192

// tracerName is the OpenTelemetry instrumentation scope for security
// spans.
const tracerName = "github.com/zorroa/archivist-core/pkg/security"

// MasterValidator runs an ordered chain of credential validators.
//
// The local validator is consulted first so that self-issued tokens
// never reach an external provider. Each validator either accepts the
// token, declines it as not-mine (unknown issuer, chain continues), or
// rejects it (chain stops immediately). A token whose issuer a
// validator claims is never given a second chance with a later
// validator; that would let an attacker shop a forged token around
// until something accepted it.
//
// When an external or delegated validator accepts, the claims are run
// through the [Provisioner] before the actor is returned, so a
// first-time federated login and a repeat login look identical to the
// caller.
type MasterValidator struct {
	validators  []CredentialValidator
	provisioner Provisioner
	tracer      trace.Tracer
}

// NewMasterValidator creates a MasterValidator over the given chain,
// consulted in order. The provisioner may be nil only when the chain
// holds no external or delegated validators.
func NewMasterValidator(provisioner Provisioner, validators ...CredentialValidator) *MasterValidator {
	return &MasterValidator{
		validators:  validators,
		provisioner: provisioner,
		tracer:      otel.Tracer(tracerName),
	}
}

// Validate runs the token through the chain and returns the resolved
// actor. The error codes distinguish "nobody recognized this"
// ([zerr.CodeAuthNoValidator]) from "somebody recognized and rejected
// this"; HTTP layers collapse both into a generic 401.
func (m *MasterValidator) Validate(ctx context.Context, token string) (*Actor, error) {
	ctx, span := startSpan(ctx, m.tracer, "security.Validate")
	defer span.End()

	if token == "" {
		err := zerr.InvalidCredential("security: token must not be empty")
		finishSpan(span, err)
		return nil, err
	}
	if len(token) > maxTokenSize {
		err := zerr.InvalidCredential("security: token exceeds maximum size")
		finishSpan(span, err)
		return nil, err
	}

	for _, v := range m.validators {
		result, err := v.Validate(ctx, token)
		if err != nil {
			if zerr.IsUnknownIssuer(err) {
				continue
			}
			finishSpan(span, err)
			return nil, err
		}

		span.SetAttributes(attribute.String("security.validator", string(v.Kind())))

		actor := result.Actor
		if actor == nil {
			if m.provisioner == nil {
				err := zerr.Internal("security: no provisioner for external credentials")
				finishSpan(span, err)
				return nil, err
			}
			actor, err = m.provisioner.Provision(ctx, result.Claims)
			if err != nil {
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

	err := zerr.New(zerr.CodeAuthNoValidator, "security: no validator accepted the token")
	finishSpan(span, err)
	return nil, err
}

// startSpan creates a new OpenTelemetry span with the given name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and marks the span failed.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
